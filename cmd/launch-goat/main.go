package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/headline-goat/launch-goat/internal/cli"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
