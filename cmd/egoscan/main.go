package main

import (
	"fmt"
	"os"

	"github.com/egoscan/egoscan/internal/cli"
)

func main() {
	if err := cli.SetupRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
