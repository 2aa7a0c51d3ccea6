package main

import (
	"os"

	"github.com/biolinkhq/vcmatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
