package gateway

import (
	"sync"
	"time"
)

// reconnectScheduler arranges exactly one pending reconnection attempt at a
// time. Rapid repeated disconnects replace the scheduled attempt instead of
// stacking timers. The policy is deliberately a fixed delay with no backoff
// growth and no retry cap: the gateway is a local service that is expected
// to come back, so the client keeps trying forever.
type reconnectScheduler struct {
	s     *Session
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func newReconnectScheduler(s *Session, delay time.Duration) *reconnectScheduler {
	return &reconnectScheduler{s: s, delay: delay}
}

// schedule arms (or re-arms) the single reconnect timer.
func (r *reconnectScheduler) schedule() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.delay, func() {
		r.mu.Lock()
		r.timer = nil
		r.mu.Unlock()
		r.s.connect()
	})
	r.mu.Unlock()
	r.s.metrics.Reconnects.Inc()
	r.s.log.Debug().Dur("delay", r.delay).Msg("reconnect scheduled")
}

// cancel stops any armed attempt.
func (r *reconnectScheduler) cancel() {
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()
}
