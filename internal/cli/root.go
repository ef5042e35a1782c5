// Package cli implements riskctl, the operator command line of the risk hub.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teamvidya/risk-hub/config"
	"github.com/teamvidya/risk-hub/internal/app"
)

// RootOptions holds global flags and the hooks every command builds on.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LoadConfig and Open default to the environment configuration and
	// app.New.
	LoadConfig func() (*config.Config, error)
	Open       func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of riskctl.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{})
}

// NewRootCommandWith creates the root command with the given hooks.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.Open == nil {
		opts.Open = app.New
	}

	cmd := &cobra.Command{
		Use:   "riskctl",
		Short: "Operate the student risk hub",
		Long: `riskctl runs the maintenance tasks of the student risk hub: schema
migrations, the initial bulk load, model training, recomputation cycles and
alert runs. Configuration is read from the environment and an optional .env
file, exactly like the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log progress to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTrainCommand(opts))
	cmd.AddCommand(NewRecomputeCommand(opts))
	cmd.AddCommand(NewAlertsCommand(opts))

	return cmd
}

// open loads the configuration and wires the engine. Logs go to stderr and
// are muted below warnings unless --verbose is set.
func (o *RootOptions) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, err
	}

	obs := cfg.Observability
	obs.LogFormat = "text"
	if !o.Verbose {
		obs.LogLevel = "warn"
	}
	logger := app.NewLogger(obs, cmd.ErrOrStderr())

	return o.Open(cmd.Context(), cfg, logger)
}

// print writes v as indented JSON, or calls text for the text format.
func (o *RootOptions) print(w io.Writer, v any, text func(w io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// Execute runs riskctl with os.Args and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
