package main

import (
	"os"

	"github.com/syntrixbase/inkwell/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
