// Package predict implements the queue wait prediction command.
package predict

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/healthmon/cmd/output"
	"github.com/tphakala/healthmon/internal/app"
	"github.com/tphakala/healthmon/internal/monitor"
)

// Report is the predict command result
type Report struct {
	PredictedWaitSeconds int                         `json:"predicted_wait_seconds"`
	Performance          *monitor.PerformanceMetrics `json:"performance,omitempty"`
}

// Command creates the predict command.
func Command(ctx *app.Context) *cobra.Command {
	var format string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict how long a new job would wait in the queue",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return output.ValidateFormat(format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := app.NewCore(ctx.Settings)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			report := Report{PredictedWaitSeconds: core.Predictor.PredictQueueWait(cmd.Context())}
			if verbose {
				perf := core.Collector.CollectPerformanceMetrics(cmd.Context())
				report.Performance = &perf
			}
			return output.Write(cmd.OutOrStdout(), format, report, report.writeText)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", output.FormatText, "Output format: text, json or yaml")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Include job throughput and success rates")

	return cmd
}

func (r Report) writeText(w io.Writer) error {
	t := &output.Table{}
	t.Add("Predicted wait", time.Duration(r.PredictedWaitSeconds)*time.Second)
	if p := r.Performance; p != nil {
		t.Add("Jobs per hour", fmt.Sprintf("%.1f", p.JobCompletionRate))
		t.Add("Avg processing", fmt.Sprintf("%.1fs", p.AvgProcessingTime))
		t.Add("Success rate", output.Percent(p.SuccessRate))
		t.Add("Error rate", output.Percent(p.ErrorRate))
		t.Add("Created (24h)", p.Throughput.Created)
		t.Add("Completed (24h)", p.Throughput.Completed)
		t.Add("Failed (24h)", p.Throughput.Failed)
	}
	_, err := t.WriteTo(w)
	return err
}
