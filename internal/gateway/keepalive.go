package gateway

import (
	"time"

	"github.com/gorilla/websocket"
)

// keepaliveSupervisor force-closes a connection that has gone silent.
//
// The gateway emits "tick" events while the session is healthy. Each period
// the supervisor checks how long ago the last tick was observed; past the
// threshold the transport is closed with a distinguishing reason, which the
// read loop then routes through the normal disconnect path. This bounds how
// long a half-open connection can pass for healthy.
type keepaliveSupervisor struct {
	stopCh chan struct{}
}

func startKeepalive(s *Session, gen uint64) *keepaliveSupervisor {
	k := &keepaliveSupervisor{stopCh: make(chan struct{})}
	go k.run(s, gen)
	return k
}

func (k *keepaliveSupervisor) stop() {
	select {
	case <-k.stopCh:
	default:
		close(k.stopCh)
	}
}

func (k *keepaliveSupervisor) run(s *Session, gen uint64) {
	ticker := time.NewTicker(s.opts.KeepalivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-k.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			if gen != s.connGen || s.state != StateConnected {
				s.mu.Unlock()
				return
			}
			silent := time.Since(s.lastTick)
			conn := s.conn
			s.mu.Unlock()

			if silent <= s.opts.TickTimeout {
				continue
			}
			s.metrics.TickTimeouts.Inc()
			s.log.Warn().Dur("silent", silent).Msg("no tick from gateway; closing connection")
			// Best-effort close frame so the peer sees why; the local Close
			// is what actually unblocks the read loop.
			deadline := time.Now().Add(time.Second)
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "tick timeout")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			conn.Close()
			return
		}
	}
}
