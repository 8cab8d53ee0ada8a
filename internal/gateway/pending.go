package gateway

import (
	"encoding/json"
	"sync"
	"time"
)

// pendingResult is the outcome delivered to a waiting Invoke call.
type pendingResult struct {
	payload json.RawMessage
	err     error
}

// pendingCall is one in-flight request awaiting its correlated response.
type pendingCall struct {
	id     string
	method string
	// ch is buffered so delivery never blocks the dispatching goroutine.
	ch chan pendingResult
	// timer is set once under the table lock in add and never reassigned, so
	// later reads through the same lock are ordered after it.
	timer *time.Timer
}

// pendingTable tracks in-flight requests by id.
//
// Every entry is removed exactly once: by a matching response, by its
// deadline timer, or by connection teardown. Removal and delivery happen
// under the table lock via take(), so a request can never be resolved twice
// even when a response and a timeout race.
type pendingTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[string]*pendingCall)}
}

// add registers a new in-flight call. A positive timeout arms a deadline
// timer running onTimeout; the timer is created inside the critical section
// so the call is never visible to take or failAll without it.
func (t *pendingTable) add(id, method string, timeout time.Duration, onTimeout func()) *pendingCall {
	call := &pendingCall{
		id:     id,
		method: method,
		ch:     make(chan pendingResult, 1),
	}
	t.mu.Lock()
	if timeout > 0 {
		call.timer = time.AfterFunc(timeout, onTimeout)
	}
	t.calls[id] = call
	t.mu.Unlock()
	return call
}

// take removes and returns the call for id, or nil when id is unknown
// (already resolved, or never ours — e.g. a late response for a superseded
// connect attempt).
func (t *pendingTable) take(id string) *pendingCall {
	t.mu.Lock()
	call, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	if call.timer != nil {
		call.timer.Stop()
	}
	return call
}

// resolve completes id with a successful payload. Unknown ids are dropped.
func (t *pendingTable) resolve(id string, payload json.RawMessage) bool {
	call := t.take(id)
	if call == nil {
		return false
	}
	call.ch <- pendingResult{payload: payload}
	return true
}

// reject completes id with err. Unknown ids are dropped.
func (t *pendingTable) reject(id string, err error) bool {
	call := t.take(id)
	if call == nil {
		return false
	}
	call.ch <- pendingResult{err: err}
	return true
}

// failAll rejects every in-flight call with err and empties the table.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[string]*pendingCall)
	t.mu.Unlock()
	for _, call := range calls {
		if call.timer != nil {
			call.timer.Stop()
		}
		call.ch <- pendingResult{err: err}
	}
	return len(calls)
}

func (t *pendingTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
