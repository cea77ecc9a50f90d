package main

import (
	"context"
	"os"

	"github.com/dshills/docsearch/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	err := cli.Execute(context.Background(), cli.BuildInfo{
		Version:   version,
		BuildTime: buildTime,
	})
	if err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}
