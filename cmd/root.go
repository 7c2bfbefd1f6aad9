package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tphakala/healthmon/cmd/check"
	"github.com/tphakala/healthmon/cmd/predict"
	"github.com/tphakala/healthmon/cmd/run"
	"github.com/tphakala/healthmon/cmd/trends"
	"github.com/tphakala/healthmon/cmd/version"
	"github.com/tphakala/healthmon/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "healthmon",
		Short:         "System health monitoring and alerting",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.ConfigPath, "config", "c", "", "Path to healthmon.yaml (default: ./, ~/.config/healthmon, /etc/healthmon)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.Debug, "debug", "d", false, "Enable debug output")

	versionCmd := version.Command(ctx)
	runCmd := run.Command(ctx)

	rootCmd.AddCommand(
		runCmd,
		check.Command(ctx),
		predict.Command(ctx),
		trends.Command(ctx),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs no configuration
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		ctx.Quiet = cmd.Name() != runCmd.Name()
		return ctx.Load()
	}

	return rootCmd
}
