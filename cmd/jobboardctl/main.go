package main

import (
	"os"

	"github.com/harentsoaR/jobboard-api/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
