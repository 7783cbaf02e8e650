package main

import (
	"os"

	"github.com/tr-legal-tech/crbranch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
