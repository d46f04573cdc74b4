package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/yodamaster/lacewing"
)

func newServeCmd() *cobra.Command {
	var (
		addr         string
		welcome      string
		hostname     string
		certValidity time.Duration
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the relay and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			_ = level.UnmarshalText([]byte(logLevel))
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			srv := lacewing.NewServer(lacewing.Hooks{
				OnError: func(c *lacewing.Client, context string, err error) {
					if c != nil {
						logger.Warn(context, "client_id", c.ID(), "error", err)
						return
					}
					logger.Warn(context, "error", err)
				},
			},
				lacewing.WithLogger(logger),
				lacewing.WithMetricsRegistry(prometheus.NewRegistry()),
			)
			if welcome == "" {
				welcome = "lacewing-relayd " + version
			}
			srv.SetWelcomeMessage(welcome)

			if err := srv.Host(lacewing.HostConfig{Addr: addr, Hostname: hostname, CertValidity: certValidity}); err != nil {
				return err
			}
			logger.Info("hosting", "addr", addr, "port", srv.Port())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			logger.Info("shutting down")
			srv.Unhost()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":6121", "WebTransport/HTTP3 listen address")
	cmd.Flags().StringVar(&welcome, "welcome", "", "Connect success banner (defaults to a version string)")
	cmd.Flags().StringVar(&hostname, "hostname", "", "hostname for the self-signed TLS certificate")
	cmd.Flags().DurationVar(&certValidity, "cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	return cmd
}
