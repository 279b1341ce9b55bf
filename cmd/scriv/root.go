package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fennwick/scriv/internal/config"
)

// NewRootCmd constructs the scriv root command.
func NewRootCmd(versionInfo config.VersionInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "scriv",
		Short:         "scriv watches a directory and commits changes as they settle",
		Long: "scriv observes a directory tree, coalesces bursts of filesystem changes\n" +
			"into checkpoint commits, and can push the current branch once at shutdown.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scriv %s (%s) built on %s\n",
				versionInfo.Version, versionInfo.Commit, versionInfo.Date)
		},
	})

	cmd.AddCommand(newWatchCmd(versionInfo))
	cmd.AddCommand(newInitCmd())

	return cmd
}
