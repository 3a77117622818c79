package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/bifrost"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of bifrost",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bifrost version %s\n", strings.TrimSpace(bifrost.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
