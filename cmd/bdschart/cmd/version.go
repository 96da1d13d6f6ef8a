package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the bdschart CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bdschart version %s\n", version)
		fmt.Fprintln(out, "Real-time candlestick charts from Birdeye Data Services")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
