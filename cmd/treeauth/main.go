package main

import (
	"fmt"
	"os"

	"github.com/aussiebroadwan/treeauth/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "treeauth: %v\n", err)
		os.Exit(1)
	}
}
