package main

import (
	"os"

	"github.com/SAP-F-2025/quiz-service/internal/cli"
)

func main() {
	os.Exit(cli.RunEmbed(os.Args[1:], os.Stdout, os.Stderr))
}
