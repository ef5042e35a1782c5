package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teamvidya/risk-hub/internal/application/command"
	"github.com/teamvidya/risk-hub/internal/domain/attendance"
	"github.com/teamvidya/risk-hub/internal/domain/profile"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEED DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

// SeedDocument is the initial bulk load. YAML and JSON are both accepted.
type SeedDocument struct {
	Students   []profile.BaseInfo    `yaml:"students"`
	Scores     []profile.ScoreRecord `yaml:"scores"`
	Attendance []SeedMark            `yaml:"attendance"`
}

// SeedMark is one historical attendance row.
type SeedMark struct {
	StudentID int64  `yaml:"student_id"`
	Date      string `yaml:"date"`
	Status    string `yaml:"status"`
}

// ParseSeed decodes a seed document.
func ParseSeed(r io.Reader) (*SeedDocument, error) {
	var doc SeedDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed document is empty")
		}
		return nil, fmt.Errorf("parse seed document: %w", err)
	}
	return &doc, nil
}

// Command converts the document into a seed command. Every bad attendance
// row is reported, not just the first.
func (d *SeedDocument) Command() (command.SeedCommand, error) {
	events := make([]attendance.Event, 0, len(d.Attendance))
	var errs []error
	for i, m := range d.Attendance {
		date, err := attendance.ParseDate(m.Date)
		if err != nil {
			errs = append(errs, fmt.Errorf("attendance row %d: %w", i+1, err))
			continue
		}
		events = append(events, attendance.NewEvent(m.StudentID, date, attendance.Status(m.Status)))
	}
	if err := errors.Join(errs...); err != nil {
		return command.SeedCommand{}, err
	}

	return command.SeedCommand{
		Students:   d.Students,
		Scores:     d.Scores,
		Attendance: events,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SEED COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load students, scores and attendance history",
		Long: `Replace the attendance history with the rows of a YAML or JSON seed
document, train the risk model when it is enabled and write every profile
column. Use "-" to read the document from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, cmd, args[0])
		},
	}
}

func runSeed(opts *RootOptions, cmd *cobra.Command, path string) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	doc, err := ParseSeed(r)
	if err != nil {
		return err
	}
	seed, err := doc.Command()
	if err != nil {
		return err
	}

	a, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Engine.Seed(cmd.Context(), seed)
	if err != nil {
		return err
	}

	return opts.print(cmd.OutOrStdout(), res, func(w io.Writer) {
		fmt.Fprintf(w, "events stored: %d\n", res.EventsStored)
		if res.ModelVersion != "" {
			fmt.Fprintf(w, "model version: %s\n", res.ModelVersion)
		}
		printReport(w, res.Report)
	})
}
