package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/shelfscan/internal/handlers"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scan API server",
		Long: `Starts the shelfscan HTTP API.

POST a photo to /api/scans to stream scan progress as newline-delimited
JSON. The library, recent scans, cover lookups, and Prometheus metrics
are served alongside.`,
		Example: `  # Start server on the configured port (default 8888)
  shelfscan serve

  # Start server on custom port
  shelfscan serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("port") {
				port = opts.cfg.Port
			}

			handler := handlers.New(handlers.Options{
				Sessions:  a.sessions,
				Scanner:   a.orchestrator,
				Library:   a.library,
				Covers:    a.covers,
				CoverGate: a.limiter.For("api-cover"),
				Limits:    a.limiter,
			})

			// Set up routes
			mux := http.NewServeMux()
			handler.Routes(mux)
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
				if _, err := w.Write([]byte("OK")); err != nil {
					slog.Error("Unable to write healthcheck", "err", err)
				}
			})

			addr := ":" + strconv.Itoa(port)
			server := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Shelfscan API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// In-flight enrichment keeps running; give it time to land
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8888, "Port to listen on")

	return cmd
}
