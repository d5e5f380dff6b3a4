package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/pathcov/cmd/pathcov/app"
	"github.com/zjy-dev/pathcov/internal/logger"
)

func main() {
	err := app.NewPathcovCommand().Execute()
	logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
