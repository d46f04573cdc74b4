package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/yodamaster/lacewing/internal/core"
)

// DefaultPort is the relay's default listen port. A single QUIC/UDP socket
// carries both the reliable and unreliable carriers over one WebTransport
// session, so there is no separate port for each.
const DefaultPort = 6121

// Listener owns the HTTP/3 + WebTransport endpoint clients upgrade to, and
// the echo mux admin surface (health, channel list, metrics) alongside it.
type Listener struct {
	echo   *echo.Echo
	wt     *webtransport.Server
	srv    *core.Server
	logger *slog.Logger
	addr   string
}

// NewListener builds a Listener bound to srv. tlsConfig is typically from
// GenerateTLSConfig. gatherer, if non-nil, is mounted at /metrics for
// Prometheus scraping; pass nil to skip exposing the route.
func NewListener(addr string, tlsConfig *tls.Config, srv *core.Server, logger *slog.Logger, gatherer prometheus.Gatherer) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	l := &Listener{echo: e, srv: srv, logger: logger, addr: addr}

	l.wt = &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: tlsConfig,
			Handler:   e,
		},
	}

	e.GET("/health", l.handleHealth)
	e.GET("/api/channels", l.handleChannels)
	e.GET("/relay", l.handleUpgrade)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return l
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (l *Listener) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Clients: l.srv.ClientCount()})
}

type channelSummary struct {
	ID      uint16 `json:"id"`
	Name    string `json:"name"`
	Clients int    `json:"clients"`
}

func (l *Listener) handleChannels(c echo.Context) error {
	out := make([]channelSummary, 0, l.srv.ChannelCount())
	for _, ch := range l.srv.Channels() {
		if ch.Hidden() {
			continue
		}
		out = append(out, channelSummary{ID: ch.ID(), Name: ch.Name(), Clients: ch.ClientCount()})
	}
	return c.JSON(http.StatusOK, out)
}

func (l *Listener) handleUpgrade(c echo.Context) error {
	sess, err := l.wt.Upgrade(c.Response(), c.Request())
	if err != nil {
		l.logger.Warn("Socket error", "error", fmt.Errorf("webtransport upgrade: %w", err))
		return err
	}
	go Serve(context.Background(), sess, l.srv, l.logger)
	return nil
}

// Run starts the HTTP/3 listener (and its echo mux) and blocks until ctx is
// canceled or startup fails.
func (l *Listener) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.wt.ListenAndServe()
	}()

	l.logger.Info("relay listening", "addr", l.addr)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("Error binding port: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.wt.Close()
		_ = shutCtx
		l.logger.Info("relay listener stopped")
		return nil
	}
}

// Port returns the configured listen port.
func (l *Listener) Port() int {
	_, portStr, ok := splitHostPort(l.addr)
	if !ok {
		return DefaultPort
	}
	var p int
	fmt.Sscanf(portStr, "%d", &p)
	return p
}

func splitHostPort(addr string) (host, port string, ok bool) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], true
		}
	}
	return "", "", false
}
