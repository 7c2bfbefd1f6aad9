// Package check implements the one-shot health report command.
package check

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tphakala/healthmon/cmd/output"
	"github.com/tphakala/healthmon/internal/app"
	"github.com/tphakala/healthmon/internal/errors"
	"github.com/tphakala/healthmon/internal/monitor"
)

// ErrUnhealthy is returned with --strict when the system is not healthy
var ErrUnhealthy = errors.NewStd("system is not healthy")

type options struct {
	format    string
	resources bool
	strict    bool
}

// Report is the check command result
type Report struct {
	Health    monitor.SystemHealth   `json:"health"`
	Resources *monitor.ResourceUsage `json:"resources,omitempty"`
}

// Command creates the check command.
func Command(ctx *app.Context) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Take one health reading and print it",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return output.ValidateFormat(opts.format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := app.NewCore(ctx.Settings)
			if err != nil {
				return err
			}
			defer func() { _ = core.Close() }()

			report := Report{Health: core.Collector.Collect(cmd.Context())}
			if opts.resources {
				usage := core.Collector.CollectResourceUsage(cmd.Context())
				report.Resources = &usage
			}

			if err := output.Write(cmd.OutOrStdout(), opts.format, report, report.writeText); err != nil {
				return err
			}
			if opts.strict && report.Health.Status != monitor.StatusHealthy {
				return ErrUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", output.FormatText, "Output format: text, json or yaml")
	cmd.Flags().BoolVarP(&opts.resources, "resources", "r", false, "Include the detailed resource breakdown")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit with an error unless the status is healthy")

	return cmd
}

func (r Report) writeText(w io.Writer) error {
	h := r.Health
	t := &output.Table{}
	t.Add("Status", strings.ToUpper(string(h.Status)))
	t.Add("CPU", output.Percent(h.CPUUsage))
	t.Add("Memory", output.Percent(h.MemoryUsage))
	t.Add("Disk", output.Percent(h.DiskUsage))
	t.Add("Database", h.DatabaseStatus)
	t.Add("Cache", h.CacheStatus)
	t.Add("Active tasks", h.ActiveTasks)
	t.Add("Queued tasks", h.QueuedTasks)
	t.Add("Failed last hour", h.FailedTasksLastHour)
	t.Add("Avg processing", fmt.Sprintf("%.1fs", h.AvgProcessingTime))
	if len(h.DegradedProbes) > 0 {
		t.Add("Degraded probes", strings.Join(h.DegradedProbes, ", "))
	}

	if res := r.Resources; res != nil {
		t.Add("Memory used", output.MB(res.MemoryUsedMB)+" / "+output.MB(res.MemoryTotalMB))
		t.Add("Disk used", output.GB(res.DiskUsedGB)+" / "+output.GB(res.DiskTotalGB))
		t.Add("Network sent", output.Bytes(res.NetworkBytesSent))
		t.Add("Network received", output.Bytes(res.NetworkBytesRecv))
		t.Add("DB connections", res.DatabaseConnections)
		if res.CPUModel != "" {
			t.Add("CPU model", fmt.Sprintf("%s (%d cores)", res.CPUModel, res.LogicalCores))
		}
	}

	_, err := t.WriteTo(w)
	return err
}
