package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

// build-time override (e.g. -ldflags "-X main.version=1.2.3")
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.ExecuteContext(ctx); err != nil {
		// If Execute() returns an error, logging may or may not be initialized yet.
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command. Every invocation gets its own
// app so tests can run commands side by side.
func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "mediscan",
		Short: "MediScan CLI",
		Long: strings.TrimSpace(`
MediScan - medical report analysis client

Upload a lab report (PDF, JPEG or PNG) to a MediScan service, read the
structured test results and the AI analysis, and manage the history of
past analyses. Sign up or log in first; the session token is stored in
your user configuration directory.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	// Global flags
	f := cmd.PersistentFlags()
	f.StringVarP(&a.flags.configFile, "config", "c", "", "Config file (.yaml, .yml or .toml; default searches the user config dir)")
	f.StringVar(&a.flags.server, "server", "", "MediScan service URL (overrides config)")
	f.StringVar(&a.flags.sessionFile, "session-file", "", "Session file (overrides config)")
	f.StringVarP(&a.flags.format, "format", "f", "", "Output format: console|json")
	f.BoolVar(&a.flags.noColor, "no-color", false, "Disable ANSI colors (console format)")
	f.BoolVarP(&a.flags.yes, "yes", "y", false, "Answer yes to confirmation prompts")
	f.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Enable verbose (info) logging")
	f.BoolVar(&a.flags.debug, "debug", false, "Enable debug logging (overrides --verbose)")
	cmd.Version = version

	// Add subcommands
	cmd.AddCommand(
		newSignupCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newUploadCmd(a),
		newHistoryCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newClearCmd(a),
		newShellCmd(a),
		newVersionCmd(),
	)

	return cmd
}

// newVersionCmd prints version info (simple helper).
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "MediScan version: %s\n", version)
		},
	}
}
