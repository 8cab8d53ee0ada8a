package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPendingTable_ResolveDeliversPayload(t *testing.T) {
	table := newPendingTable()
	call := table.add("a", "status", 0, nil)

	require.True(t, table.resolve("a", json.RawMessage(`{"ok":1}`)))
	res := <-call.ch
	require.NoError(t, res.err)
	require.JSONEq(t, `{"ok":1}`, string(res.payload))
	require.Equal(t, 0, table.size())
}

func TestPendingTable_RejectDeliversError(t *testing.T) {
	table := newPendingTable()
	call := table.add("a", "status", 0, nil)

	boom := errors.New("boom")
	require.True(t, table.reject("a", boom))
	res := <-call.ch
	require.ErrorIs(t, res.err, boom)
	require.Nil(t, res.payload)
}

func TestPendingTable_UnknownIDDropped(t *testing.T) {
	table := newPendingTable()
	require.False(t, table.resolve("nope", nil))
	require.False(t, table.reject("nope", errors.New("late")))
}

func TestPendingTable_ResolvedExactlyOnce(t *testing.T) {
	table := newPendingTable()
	call := table.add("a", "status", 0, nil)

	require.True(t, table.resolve("a", nil))
	// The second completion, whatever its source, must be a no-op.
	require.False(t, table.reject("a", errors.New("timeout")))
	require.False(t, table.resolve("a", nil))

	res := <-call.ch
	require.NoError(t, res.err)
	select {
	case extra := <-call.ch:
		t.Fatalf("unexpected second delivery: %+v", extra)
	default:
	}
}

func TestPendingTable_TakeStopsTimer(t *testing.T) {
	table := newPendingTable()
	fired := make(chan struct{}, 1)
	table.add("a", "status", 20*time.Millisecond, func() {
		fired <- struct{}{}
	})

	require.NotNil(t, table.take("a"))
	select {
	case <-fired:
		t.Fatal("timer fired after take")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestPendingTable_TimeoutCallbackFires(t *testing.T) {
	table := newPendingTable()
	call := table.add("a", "status", 10*time.Millisecond, func() {
		table.reject("a", errors.New("deadline"))
	})

	select {
	case res := <-call.ch:
		require.EqualError(t, res.err, "deadline")
	case <-time.After(time.Second):
		t.Fatal("deadline callback never fired")
	}
	require.Equal(t, 0, table.size())
}

func TestPendingTable_ImmediateDeadlineRace(t *testing.T) {
	// A zero-length deadline makes the timer callback race the add itself;
	// each call must still resolve exactly once and leave the table empty.
	table := newPendingTable()
	done := make(chan struct{}, 64)
	for i := 0; i < 64; i++ {
		id := string(rune('a' + i%26)) + string(rune('0' + i/26))
		table.add(id, "m", time.Nanosecond, func() {
			if table.reject(id, errors.New("deadline")) {
				done <- struct{}{}
			}
		})
	}
	for i := 0; i < 64; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("deadline callbacks did not all fire")
		}
	}
	require.Equal(t, 0, table.size())
}

func TestPendingTable_FailAllEmptiesTable(t *testing.T) {
	table := newPendingTable()
	a := table.add("a", "one", 0, nil)
	b := table.add("b", "two", 0, nil)

	require.Equal(t, 2, table.failAll(ErrDisconnected))
	require.Equal(t, 0, table.size())
	require.ErrorIs(t, (<-a.ch).err, ErrDisconnected)
	require.ErrorIs(t, (<-b.ch).err, ErrDisconnected)
}

func TestPendingTable_ConcurrentRace(t *testing.T) {
	table := newPendingTable()
	const n = 100
	calls := make([]*pendingCall, n)
	for i := 0; i < n; i++ {
		calls[i] = table.add(string(rune('a'+i%26))+string(rune('0'+i/26)), "m", 0, nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := calls[i].id
		wg.Add(2)
		go func() {
			defer wg.Done()
			table.resolve(id, nil)
		}()
		go func() {
			defer wg.Done()
			table.reject(id, errors.New("timeout"))
		}()
	}
	wg.Wait()

	// Each call saw exactly one outcome.
	for _, call := range calls {
		<-call.ch
		select {
		case <-call.ch:
			t.Fatalf("call %s delivered twice", call.id)
		default:
		}
	}
	require.Equal(t, 0, table.size())
}
