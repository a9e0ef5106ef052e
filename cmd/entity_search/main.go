package main

import (
	"os"

	"github.com/gcbaptista/entity-search/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
