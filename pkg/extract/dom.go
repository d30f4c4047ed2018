package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// Parse parses an HTML document. Parse errors on real-world markup are
// effectively impossible; x/net/html repairs as it goes.
func Parse(source string) (*html.Node, error) {
	return html.Parse(strings.NewReader(source))
}

// QueryAll returns all nodes matching a simple CSS selector, in document
// order. Supported forms:
//   - tag: "div", "a", "b"
//   - .class: ".app-card"
//   - #id: "#main"
//   - tag.class: "div.app-card"
//   - tag[attr]: "a[href]"
//   - tag[attr=val]: "a[rel=next]"
//   - tag[attr*=val]: "div[class*=col-md]" (substring match)
//   - space-separated descendant combinators: "span.customer a"
func QueryAll(doc *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}

	matches := matchSimple(doc, parts[0])
	for _, part := range parts[1:] {
		var next []*html.Node
		for _, n := range matches {
			next = append(next, matchSimple(n, part)...)
		}
		matches = dedupeNodes(next)
	}
	return matches
}

// Query returns the first node matching the selector, or nil.
func Query(doc *html.Node, selector string) *html.Node {
	matches := QueryAll(doc, selector)
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// Text collects and whitespace-normalizes all text under a node.
func Text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// Attr returns the named attribute value, or "".
func Attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// HasClass reports whether the node carries the given class token.
func HasClass(n *html.Node, class string) bool {
	for _, token := range strings.Fields(Attr(n, "class")) {
		if token == class {
			return true
		}
	}
	return false
}

// matchSimple returns all descendants of root (excluding root itself)
// matching one selector part.
func matchSimple(root *html.Node, part string) []*html.Node {
	tag, class, id, attrKey, attrVal, attrContains := parsePart(part)

	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && nodeMatches(c, tag, class, id, attrKey, attrVal, attrContains) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// parsePart splits one selector part into its components.
func parsePart(part string) (tag, class, id, attrKey, attrVal string, attrContains bool) {
	// Attribute suffix: tag[attr], tag[attr=val], tag[attr*=val].
	if open := strings.IndexByte(part, '['); open >= 0 && strings.HasSuffix(part, "]") {
		attr := part[open+1 : len(part)-1]
		part = part[:open]
		if eq := strings.Index(attr, "*="); eq >= 0 {
			attrKey, attrVal, attrContains = attr[:eq], attr[eq+2:], true
		} else if eq := strings.IndexByte(attr, '='); eq >= 0 {
			attrKey, attrVal = attr[:eq], attr[eq+1:]
		} else {
			attrKey = attr
		}
	}

	if dot := strings.IndexByte(part, '.'); dot >= 0 {
		tag, class = part[:dot], part[dot+1:]
	} else if hash := strings.IndexByte(part, '#'); hash >= 0 {
		tag, id = part[:hash], part[hash+1:]
	} else {
		tag = part
	}
	return
}

func nodeMatches(n *html.Node, tag, class, id, attrKey, attrVal string, attrContains bool) bool {
	if tag != "" && n.Data != tag {
		return false
	}
	if class != "" && !HasClass(n, class) {
		return false
	}
	if id != "" && Attr(n, "id") != id {
		return false
	}
	if attrKey != "" {
		got := Attr(n, attrKey)
		if attrContains {
			if !strings.Contains(got, attrVal) {
				return false
			}
		} else if attrVal != "" {
			if got != attrVal {
				return false
			}
		} else if !hasAttr(n, attrKey) {
			return false
		}
	}
	return true
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func dedupeNodes(nodes []*html.Node) []*html.Node {
	seen := make(map[*html.Node]bool, len(nodes))
	out := nodes[:0]
	for _, n := range nodes {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
