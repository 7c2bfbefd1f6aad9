// Package version implements the version command.
package version

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/tphakala/healthmon/cmd/output"
	"github.com/tphakala/healthmon/internal/app"
)

// Command creates the version command.
func Command(ctx *app.Context) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return output.ValidateFormat(format)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := ctx.Build.Info()
			return output.Write(cmd.OutOrStdout(), format, info, func(w io.Writer) error {
				t := &output.Table{}
				t.Add("Version", info.Version)
				t.Add("Build date", info.BuildDate)
				t.Add("Commit", info.Commit)
				t.Add("Go", info.GoVersion)
				t.Add("Platform", info.Platform)
				_, err := t.WriteTo(w)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", output.FormatText, "Output format: text, json or yaml")
	return cmd
}
