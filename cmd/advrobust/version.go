package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "v0.1.0-dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "advrobust %s\n", version)
		},
	}
}
