package cmd

import (
	"context"
	"fmt"

	"github.com/giantswarm/muster-fabric/internal/app"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveSilent discards logging output entirely, for use when stdout/stderr
// must stay clean for a client speaking MCP over stdio.
var serveSilent bool

// serveCmd starts the fabric: it wires up the event bus, client pool,
// workflow engine and aggregator and serves their combined tool set
// over stdio.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the collaboration fabric and serve its tools over stdio.",
	Long: `Starts the collaboration fabric: registers every peer configured in
muster-fabric.yaml (each is connected on first use), loads any seed
workflow definitions, and serves the workflow engine's and
aggregator's tools as a single MCP server over stdio.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveSilent)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveSilent, "silent", false, "Discard log output")
}
