package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
)

// rootCmd represents the base command for the fabric binary. It is
// the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "muster-fabric",
	Short: "Run the collaboration fabric for a suite of MCP tool servers.",
	Long: `muster-fabric runs the event bus, client pool, workflow engine and
aggregator that let a suite of MCP tool servers collaborate: servers
publish events, workflows react to them by calling other servers'
tools in sequence, and composite tools fan a request out across every
registered peer.`,
	// SilenceUsage prevents Cobra from printing the usage message on
	// errors that are already handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "muster-fabric version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
