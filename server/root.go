package server

import (
	"github.com/spf13/cobra"

	"github.com/keldcache/keld/version"
)

var showVersion bool

func init() {
	RootCmd.AddCommand(ServeCmd)
	RootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "show the version and exit")
}

// RootCmd is the main command for the 'keld' binary.
var RootCmd = &cobra.Command{
	Use:   "keld",
	Short: "`keld`",
	Long:  "`keld` is an in-memory RESP cache server.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			version.PrintVersion()
			return
		}
		// nolint:errcheck
		cmd.Usage()
	},
}
