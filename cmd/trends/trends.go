// Package trends implements the error trend analysis command.
package trends

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/healthmon/cmd/output"
	"github.com/tphakala/healthmon/internal/app"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/monitor"
)

const maxWindowHours = 720

type options struct {
	format string
	hours  int
}

// Command creates the trends command.
func Command(ctx *app.Context) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Summarize job failures over a time window",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.hours < 1 || opts.hours > maxWindowHours {
				return errors.Newf("--hours must be between 1 and %d, got %d", maxWindowHours, opts.hours).
					Component("cli").
					Category(errors.CategoryValidation).
					Build()
			}
			return output.ValidateFormat(opts.format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := app.NewCore(ctx.Settings)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			trends := core.Evaluator.AnalyzeErrorTrends(cmd.Context(), opts.hours)
			return output.Write(cmd.OutOrStdout(), opts.format, trends, func(w io.Writer) error {
				return writeText(w, &trends)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", output.FormatText, "Output format: text, json or yaml")
	cmd.Flags().IntVar(&opts.hours, "hours", 24, "Analysis window in hours")

	return cmd
}

func writeText(w io.Writer, trends *monitor.ErrorTrends) error {
	t := &output.Table{}
	t.Add("Window", fmt.Sprintf("%dh since %s", trends.WindowHours, trends.WindowStart.Format("2006-01-02 15:04 MST")))
	t.Add("Total errors", trends.TotalErrors)
	t.Add("Error rate", output.Percent(trends.ErrorRate))
	for _, category := range slices.Sorted(maps.Keys(trends.ErrorCategories)) {
		t.Add("  "+string(category), trends.ErrorCategories[category])
	}
	for _, p := range trends.Patterns {
		t.Add("Pattern", p.Description)
	}
	if _, err := t.WriteTo(w); err != nil {
		return err
	}

	if len(trends.RecentErrors) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "\nRecent errors:"); err != nil {
		return err
	}
	for _, e := range trends.RecentErrors {
		if _, err := fmt.Fprintf(w, "  %s  %-10s %s  %s\n",
			e.CompletedAt.Format(time.DateTime), e.Category, e.TaskID, e.Message); err != nil {
			return err
		}
	}
	return nil
}
