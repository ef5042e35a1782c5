// Package main is the entry point of riskctl.
package main

import (
	"os"

	"github.com/teamvidya/risk-hub/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
