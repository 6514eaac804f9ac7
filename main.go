package main

import (
	"os"

	"github.com/jsbattig/code-indexer-sub031/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
