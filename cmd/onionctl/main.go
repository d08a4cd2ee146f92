package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag string
	rootCmd = &cobra.Command{
		Use:   "onionctl",
		Short: "Operator CLI for the diary service",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Diary service base URL")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
