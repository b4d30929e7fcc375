package commands

import (
	"errors"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/celestiaorg/testbed/internal/api"
	"github.com/celestiaorg/testbed/internal/logger"
	"github.com/celestiaorg/testbed/internal/metrics"
	"github.com/celestiaorg/testbed/pkg/api/v1/routes"
)

// shutdownTimeout bounds how long in-flight requests may take once the server stops
const shutdownTimeout = 10 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the testbed HTTP API and prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.serverAddress != "" {
				return errors.New("serve drives the provider directly and cannot be combined with --server-address")
			}

			ctx := cmd.Context()
			m := metrics.New()
			svc, closeDB, err := openService(ctx, opts, m)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := closeDB(); cerr != nil {
					logger.Warnf("Failed to close database: %v", cerr)
				}
			}()

			app := api.NewApp(svc, m)
			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Serving the testbed API on %s", listen)
				errCh <- app.Listen(listen)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					logger.Errorf("API server stopped: %v", err)
				}
				return err
			case <-ctx.Done():
				logger.Info("Shutting down the API server")
				return app.ShutdownWithTimeout(shutdownTimeout)
			}
		},
	}

	cmd.Flags().StringVar(&listen, "listen", net.JoinHostPort("", routes.DefaultPort), "Address the API listens on")
	return cmd
}
