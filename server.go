// Package lacewing is the public façade of the relay: a Server an embedding
// application hosts, and the Client/Channel handles it hands back through
// hooks and iterators. Internally it is a thin wrapper over internal/core's
// protocol engine plus internal/transport's WebTransport carrier and
// internal/metrics' Prometheus collectors — the façade's job is wiring
// those together and exposing a stable API, with Client and Channel
// exported directly as the embeddable surface.
package lacewing

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yodamaster/lacewing/internal/core"
	"github.com/yodamaster/lacewing/internal/metrics"
	"github.com/yodamaster/lacewing/internal/transport"
)

// Client and Channel are re-exported directly from internal/core: their
// fields are only ever mutated through the dispatcher, so there is nothing
// the façade needs to wrap around them.
type Client = core.Client
type Channel = core.Channel

// Hooks mirrors internal/core.Hooks; re-exported so callers never import
// internal/core directly.
type Hooks = core.Hooks

// Server hosts the relay: accepting WebTransport sessions, running the
// liveness ticker, and exposing the registries and hook contract.
type Server struct {
	mu sync.Mutex

	core     *core.Server
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	logger   *slog.Logger

	listener   *transport.Listener
	cancelTick context.CancelFunc
	hosting    bool
	port       int
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the default slog logger used throughout the relay.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsRegistry registers the relay's Prometheus collectors against
// reg instead of a private registry created for this Server — tests and
// multi-instance deployments both want this.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// NewServer constructs a Server with the given hooks, ready to Host. Every
// Server has its own Prometheus registry and collectors, scraped through
// the admin HTTP surface's /metrics route once Host is called; pass
// WithMetricsRegistry to register them on a caller-supplied registry
// instead. A registry holds the collectors of one Server only: registering
// a second Server's set on it panics.
func NewServer(hooks Hooks, opts ...Option) *Server {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	s.metrics = metrics.New(s.registry)
	s.core = core.NewServer(hooks)
	s.core.SetLogger(s.logger)
	s.core.SetMetrics(s.metrics)
	return s
}

// SetWelcomeMessage sets the string sent on a successful Connect.
func (s *Server) SetWelcomeMessage(msg string) { s.core.SetWelcomeMessage(msg) }

// Clients returns a snapshot of every currently connected client.
func (s *Server) Clients() []*Client { return s.core.Clients() }

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int { return s.core.ClientCount() }

// Channels returns a snapshot of every live channel, including hidden ones.
func (s *Server) Channels() []*Channel { return s.core.Channels() }

// ChannelCount returns the number of live channels.
func (s *Server) ChannelCount() int { return s.core.ChannelCount() }

// Hosting reports whether Host has been called without a matching Unhost.
func (s *Server) Hosting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hosting
}

// Port returns the port of the most recent Host call that got as far as
// building its listener (it stays set if that listener then fails to
// start), or transport.DefaultPort if no Host call has done so.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == 0 {
		return transport.DefaultPort
	}
	return s.port
}

// HostConfig configures Host. A zero value hosts on transport.DefaultPort
// with a generated self-signed certificate valid for 24 hours.
type HostConfig struct {
	// Addr is the listen address, e.g. ":6121". Empty means the default port
	// on every interface.
	Addr string
	// TLSConfig overrides the generated self-signed certificate, e.g. to
	// present a certificate signed by a real CA.
	TLSConfig *tls.Config
	// Hostname is used as the self-signed certificate's CommonName/SAN when
	// TLSConfig is nil.
	Hostname string
	// CertValidity is the generated certificate's validity period when
	// TLSConfig is nil. Zero means 24 hours.
	CertValidity time.Duration
}

// Host starts accepting connections and starts the liveness ticker. It
// returns once the listener is bound; Unhost stops both.
func (s *Server) Host(cfg HostConfig) error {
	s.mu.Lock()
	if s.hosting {
		s.mu.Unlock()
		return fmt.Errorf("lacewing: already hosting")
	}

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", transport.DefaultPort)
	}

	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		validity := cfg.CertValidity
		if validity == 0 {
			validity = 24 * time.Hour
		}
		var fingerprint string
		var err error
		tlsConfig, fingerprint, err = transport.GenerateTLSConfig(validity, cfg.Hostname)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("lacewing: %w", err)
		}
		s.logger.Info("generated self-signed certificate", "sha256_fingerprint", fingerprint)
	}

	s.listener = transport.NewListener(addr, tlsConfig, s.core, s.logger, s.registry)
	_, portStr, _ := splitHostPort(addr)
	fmt.Sscanf(portStr, "%d", &s.port)
	if s.port == 0 {
		s.port = transport.DefaultPort
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancelTick = cancel
	s.hosting = true
	s.mu.Unlock()

	go s.core.RunLiveness(runCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.listener.Run(runCtx) }()

	select {
	case err := <-errCh:
		if err != nil {
			s.mu.Lock()
			s.hosting = false
			s.mu.Unlock()
			return err
		}
	case <-time.After(200 * time.Millisecond):
		// Listener bound successfully and is now serving in the background.
	}
	return nil
}

// Unhost stops accepting new connections and stops the liveness ticker.
// Already-connected clients are not forcibly disconnected.
func (s *Server) Unhost() {
	s.mu.Lock()
	if !s.hosting {
		s.mu.Unlock()
		return
	}
	cancel := s.cancelTick
	s.hosting = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func splitHostPort(addr string) (host, port string, ok bool) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], true
		}
	}
	return "", "", false
}
