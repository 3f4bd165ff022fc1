package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the kubewake application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kubewake",
	Short: "Tail logs from a dynamically changing set of Kubernetes pods",
	Long: `kubewake tails logs from every pod matching a selection and merges them
into one filterable stream. Pods are re-discovered continuously, so pods
that appear after startup are picked up automatically and streams that
drop are reopened.

When run without subcommands, it starts tailing (equivalent to 'kubewake tail').`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// knownSubcommands lists the names and aliases that select a subcommand
// explicitly; any other first argument is treated as a pod pattern for tail.
var knownSubcommands = map[string]struct{}{
	"tail":        {},
	"containers":  {},
	"version":     {},
	"self-update": {},
	"help":        {},
	"completion":  {},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "kubewake version %s\n" .Version}}`)

	// Default to the tail command: bare invocations and invocations whose
	// first argument is a pod pattern or flag both mean 'kubewake tail'.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "tail")
	} else if _, known := knownSubcommands[os.Args[1]]; !known && os.Args[1] != "--version" && os.Args[1] != "--help" && os.Args[1] != "-h" {
		os.Args = append([]string{os.Args[0], "tail"}, os.Args[1:]...)
	}

	err := rootCmd.Execute()
	if err != nil {
		// Cobra itself usually prints the error. Exiting with a non-zero status code
		// indicates that an error occurred during execution.
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newTailCmd())
	rootCmd.AddCommand(newContainersCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
