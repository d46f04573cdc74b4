package core

import (
	"context"
	"time"

	"github.com/yodamaster/lacewing/internal/wire"
)

// LivenessInterval is the ping/pong sweep's tick period.
const LivenessInterval = 5 * time.Second

// RunLiveness runs the ping/pong sweep until ctx is canceled. Call it once,
// in its own goroutine, per Server.
func (s *Server) RunLiveness(ctx context.Context) {
	ticker := time.NewTicker(LivenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.livenessSweep()
		}
	}
}

func (s *Server) livenessSweep() {
	s.mu.Lock()
	var toDisconnect []*Client
	var toPing []*Client
	for _, c := range s.clientsByID {
		if !c.ponged {
			toDisconnect = append(toDisconnect, c)
			continue
		}
		c.ponged = false
		toPing = append(toPing, c)
	}
	s.mu.Unlock()

	ping := wire.NewWriter(wire.Header{Type: wire.TypePing}).Body()
	for _, c := range toPing {
		s.sendStream(c, ping)
	}

	// Disconnect after the sweep, not during it, so a client's own absence
	// from toPing never depends on disconnect side effects run mid-loop.
	s.mu.Lock()
	metrics := s.metrics
	s.mu.Unlock()
	for _, c := range toDisconnect {
		if metrics != nil {
			metrics.RecordPingTimeout()
		}
		s.Disconnect(c)
	}
}
