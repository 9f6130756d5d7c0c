package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pointerbridge-utils",
	Short: "Pointer bridge utilities",
	Long:  "Utilities for the pointer bridge including address translation, pointer address derivation and database maintenance",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
