package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Each call returns a fresh tree so
// tests can run commands in isolation.
func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "kewtag",
		Short: "Identity tags for KEW.PA assets and KEW.PS inventory",
		Long: `kewtag builds the machine-readable payloads printed on asset and
inventory labels, renders them as QR codes, decodes scanned text and
serves the tagging API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	root.AddCommand(
		newCodeCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
		newRenderCmd(),
		newInspectCmd(),
		newServeCmd(),
	)
	return root
}
