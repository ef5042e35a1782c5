package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teamvidya/risk-hub/internal/application/command"
	"github.com/teamvidya/risk-hub/internal/domain/risk"
	"github.com/teamvidya/risk-hub/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

// errNoDatabase is returned by commands that only make sense against Postgres.
var errNoDatabase = errors.New("DATABASE_URL is not set")

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(rootOpts, cmd, func(ctx context.Context, m *postgres.Migrator) error {
				n, err := m.Migrate(ctx)
				if err != nil {
					return err
				}
				return rootOpts.print(cmd.OutOrStdout(), map[string]int{"applied": n}, func(w io.Writer) {
					fmt.Fprintf(w, "applied %d migration(s)\n", n)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(rootOpts, cmd, func(ctx context.Context, m *postgres.Migrator) error {
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "rolled back the last migration")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(rootOpts, cmd, func(ctx context.Context, m *postgres.Migrator) error {
				list, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return rootOpts.print(cmd.OutOrStdout(), list, func(w io.Writer) {
					printMigrations(w, list)
				})
			})
		},
	})

	return cmd
}

func withMigrator(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, *postgres.Migrator) error) error {
	a, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.DB == nil {
		return errNoDatabase
	}
	return fn(cmd.Context(), postgres.NewMigrator(a.DB))
}

func printMigrations(w io.Writer, list []postgres.Migration) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
	for _, m := range list {
		applied := "pending"
		if m.IsApplied {
			applied = m.AppliedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
	}
	_ = tw.Flush()
}

// ══════════════════════════════════════════════════════════════════════════════
// TRAIN
// ══════════════════════════════════════════════════════════════════════════════

// NewTrainCommand creates the train command.
func NewTrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Retrain the risk model from stored profiles and attendance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Train.Handle(cmd.Context())
			if err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "model version: %s\n", res.Version)
				fmt.Fprintf(w, "training rows: %d\n", res.TrainingRows)
				fmt.Fprintf(w, "training accuracy: %.3f\n", res.TrainingAccuracy)
				fmt.Fprintf(w, "depth: %d\n", res.Depth)
				printReport(w, res.Recompute)
			})
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE
// ══════════════════════════════════════════════════════════════════════════════

// NewRecomputeCommand creates the recompute command.
func NewRecomputeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Run one recomputation cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if d := a.Config.Cycle.Timeout; d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			report, err := a.Engine.Recompute(ctx)
			if err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), report, func(w io.Writer) {
				printReport(w, report)
			})
		},
	}
}

// printReport writes the text form of a cycle report.
func printReport(w io.Writer, r *command.CycleReport) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "cycle %s (%s) in %s\n", r.CycleID, r.Mode, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "strategy: %s\n", r.Strategy)
	if r.Fallback != "" {
		fmt.Fprintf(w, "fallback: %s\n", r.Fallback)
	}
	fmt.Fprintf(w, "events: %d  students: %d  upserted: %d  skipped: %d\n",
		r.Events, r.Students, r.Upserted, len(r.Skipped))
	for _, level := range risk.Levels {
		fmt.Fprintf(w, "  %-6s %d\n", level, r.Levels[level])
	}
	for _, f := range r.Skipped {
		fmt.Fprintf(w, "  skipped student %d at %s: %s\n", f.StudentID, f.Stage, f.Reason)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERTS
// ══════════════════════════════════════════════════════════════════════════════

// NewAlertsCommand creates the alerts command.
func NewAlertsCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Send alerts for every Medium and High risk student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Alerts.Handle(cmd.Context(), command.SendAlertsCommand{DryRun: dryRun})
			if err != nil {
				return err
			}
			if err := rootOpts.print(cmd.OutOrStdout(), report, func(w io.Writer) {
				printAlerts(w, report)
			}); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d alerts failed", report.Failed, report.Selected)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list recipients without sending")
	return cmd
}

func printAlerts(w io.Writer, r *command.AlertReport) {
	ids := slices.Clone(r.StudentIDs)
	slices.Sort(ids)
	fmt.Fprintf(w, "selected: %d  sent: %d  failed: %d  dry run: %t\n", r.Selected, r.Sent, r.Failed, r.DryRun)
	if len(ids) > 0 {
		fmt.Fprintf(w, "students: %v\n", ids)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  student %d: %s\n", f.StudentID, f.Reason)
	}
}
