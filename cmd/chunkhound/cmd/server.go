package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/chunkhound-go/chunkhound/internal/httpapi"
)

// newServerCmd serves the HTTP surface only, against an existing database.
func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server [path]",
		Short: "Serve /health, /stats, /search/regex, /search/semantic over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			a, err := buildApp(projectRoot(args), currentFlags())
			if err != nil {
				return err
			}
			defer a.Close()

			httpSrv := httpapi.New(a.store, a.orchestrator, slog.Default())
			addr := fmt.Sprintf("%s:%d", flagHost, flagPort)
			srv := &http.Server{Addr: addr, Handler: httpSrv}

			ctx, resolve := signalContext()
			stopCoord := startCoordination(ctx, a)
			defer stopCoord()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("http server listening", slog.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
				return resolve(ctx.Err())
			case err := <-errCh:
				if err == http.ErrServerClosed {
					return nil
				}
				return resolve(err)
			}
		},
	}
}
