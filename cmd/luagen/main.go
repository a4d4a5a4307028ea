package main

import (
	"os"

	"github.com/teilomillet/luagen/cmd/luagen/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
