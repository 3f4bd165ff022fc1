package cmd

import (
	"context"
	"fmt"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

// githubRepoSlug is the GitHub repository releases are pulled from.
const githubRepoSlug = "kubewake/kubewake"

// newSelfUpdateCmd creates the Cobra command that replaces the running
// binary with the latest GitHub release.
func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update kubewake to the latest version",
		Long: `Check the kubewake GitHub releases for a newer version and replace the
current binary when one is available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			version := rootCmd.Version
			if version == "" || version == "dev" {
				return fmt.Errorf("cannot self-update a development version (%q); install a released build first", version)
			}

			latest, err := selfupdate.UpdateSelf(context.Background(), version, selfupdate.ParseSlug(githubRepoSlug))
			if err != nil {
				return fmt.Errorf("self-update failed: %w", err)
			}

			if latest.Equal(version) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "kubewake is already at the latest version %s\n", version)
			} else {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "kubewake updated to version %s\n", latest.Version())
			}
			return nil
		},
	}
}
