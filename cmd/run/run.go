// Package run implements the monitoring daemon command.
package run

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tphakala/healthmon/internal/app"
)

type options struct {
	listen      string
	noWebServer bool
}

// Command creates the run command.
func Command(ctx *app.Context) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the health monitor",
		Long:  "Start the monitoring loop, alert notifications, scheduled maintenance and the admin HTTP API. Stops on SIGINT or SIGTERM.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := ctx.Settings
			if opts.listen != "" {
				settings.WebServer.Listen = opts.listen
			}
			if opts.noWebServer {
				settings.WebServer.Enabled = false
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			daemon, err := app.NewDaemon(sigCtx, settings, ctx.Build)
			if err != nil {
				return err
			}
			return daemon.Run(sigCtx)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "Admin API listen address, overrides webserver.listen")
	cmd.Flags().BoolVar(&opts.noWebServer, "no-webserver", false, "Disable the admin HTTP API")

	return cmd
}
