package main

import (
	"os"

	"github.com/spherical-ai/spherical/libs/docbatch/cmd/docbatch-cli/commands"
	"github.com/spherical-ai/spherical/libs/docbatch/cmd/docbatch-cli/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		ui.New(false, false).Error("%v", err)
		os.Exit(1)
	}
}
