package main

import (
	"fmt"
	"os"

	"offline_gateway/internal/cli"
)

var version = "v1.0.0"

func main() {
	if err := cli.ExecuteWithVersion(version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
