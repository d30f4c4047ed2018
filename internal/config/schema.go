package config

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema is the structural schema for the config file. Catching a
// mistyped key or a string-where-number before unmarshal gives a precise
// error instead of a silent default.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "data_dir": {"type": "string"},
    "dashboard": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "base_url": {"type": "string", "minLength": 1},
        "login_path": {"type": "string"},
        "list_path": {"type": "string"},
        "session_file": {"type": "string"},
        "second_factor_wait_seconds": {"type": "integer", "minimum": 0},
        "markers": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "login": {"type": "string", "minLength": 1},
            "second_factor": {"type": "string", "minLength": 1},
            "authenticated": {"type": "string", "minLength": 1},
            "login_failed": {"type": "string", "minLength": 1}
          }
        }
      }
    },
    "browser": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "headless": {"type": "boolean"},
        "no_sandbox": {"type": "boolean"},
        "chrome_path": {"type": "string"},
        "user_data_dir": {"type": "string"},
        "page_timeout_seconds": {"type": "integer", "minimum": 1}
      }
    },
    "scrape": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "card_selector": {"type": "string", "minLength": 1},
        "id_selector": {"type": "string", "minLength": 1},
        "label_selector": {"type": "string", "minLength": 1},
        "next_text": {"type": "string", "minLength": 1},
        "settle_wait_seconds": {"type": "integer", "minimum": 0},
        "retry_backoff_seconds": {"type": "integer", "minimum": 0},
        "max_pages": {"type": "integer", "minimum": 0}
      }
    },
    "store": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "backend": {"type": "string", "enum": ["supabase", "sqlite", "memory"]},
        "supabase": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "url": {"type": "string"},
            "table": {"type": "string", "minLength": 1},
            "key_column": {"type": "string", "minLength": 1}
          }
        },
        "sqlite_path": {"type": "string"}
      }
    },
    "sync": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "workers": {"type": "integer", "minimum": 1}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string", "enum": ["trace", "debug", "info", "warn", "error"]},
        "file": {"type": "string"},
        "console": {"type": "boolean"},
        "pretty": {"type": "boolean"},
        "redaction": {"type": "boolean"}
      }
    },
    "daemon": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "schedule": {"type": "string", "minLength": 1},
        "metrics_addr": {"type": "string"}
      }
    },
    "diagnostics": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "dir": {"type": "string"},
        "keep": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

// ValidateDocument checks raw config JSON against the document schema.
func ValidateDocument(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid config: %s", errs[0].String())
		}
		return fmt.Errorf("invalid config")
	}
	return nil
}
