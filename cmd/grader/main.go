package main

import (
	"os"

	"github.com/kcay/local-ai-grader/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
