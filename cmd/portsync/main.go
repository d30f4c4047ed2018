package main

import (
	"os"

	"github.com/cslcapital/portsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
