package main

import (
	"os"

	"github.com/denismitr/tern-orientdb/internal/cli"
)

func main() {
	root := cli.NewRootCommand(os.Stdout)

	if err := root.Execute(); err != nil {
		cli.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}
