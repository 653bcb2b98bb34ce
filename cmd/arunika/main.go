package main

import (
	"os"

	"github.com/danang/arunika/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
