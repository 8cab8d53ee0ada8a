// Package gateway maintains the authenticated, persistent session to the
// gateway process: a single multiplexed WebSocket carrying JSON request,
// response and event frames.
//
// A Session owns the connection lifecycle end to end — dialing, the signed
// connect handshake (with its optional challenge round), request/response
// correlation, liveness supervision, and reconnection — so callers only ever
// see Invoke and Connected.
package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/roost-dev/roost/internal/auth"
	"github.com/roost-dev/roost/internal/identity"
	"github.com/roost-dev/roost/internal/protocol/wire"
)

// State is the connection lifecycle phase.
type State int32

const (
	// StateDisconnected means no socket is open.
	StateDisconnected State = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateHandshaking means the socket is open and a connect request is in
	// flight (or awaited after a challenge).
	StateHandshaking
	// StateConnected means the handshake was confirmed.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const writeTimeout = 10 * time.Second

// Options configures a Session.
type Options struct {
	// URL is the gateway WebSocket URL.
	URL string
	// Token is an optional bearer token (query parameter + Authorization
	// header on dial, auth block in connect params).
	Token string
	// Password is an optional shared password for the auth block.
	Password string

	// ClientID, ClientDisplayName, ClientVersion, ClientMode describe this
	// client in connect params.
	ClientID          string
	ClientDisplayName string
	ClientVersion     string
	ClientMode        string
	// Platform is the client platform string.
	Platform string
	// Role and Scopes are the requested session privileges.
	Role   string
	Scopes []string
	// Caps are the advertised capabilities.
	Caps []string

	// Identity is the persistent device identity used to sign the handshake.
	Identity *identity.Identity

	// InvokeTimeout is the default per-request deadline (10s when zero).
	InvokeTimeout time.Duration
	// KeepalivePeriod is the liveness check interval (30s when zero).
	KeepalivePeriod time.Duration
	// TickTimeout is the liveness silence threshold (65s when zero).
	TickTimeout time.Duration
	// ReconnectDelay is the fixed reconnect delay (3s when zero).
	ReconnectDelay time.Duration

	// Logger receives session logs.
	Logger zerolog.Logger
	// Metrics receives session counters; a private set is created when nil.
	Metrics *Metrics
	// Dialer overrides the WebSocket dialer (tests).
	Dialer *websocket.Dialer

	// OnEvent, when set, receives gateway events other than the protocol's
	// own (tick, connect.challenge). Called on its own goroutine.
	OnEvent func(name string, payload json.RawMessage)
}

// Session is the single owned connection to the gateway.
//
// All mutations of connection state and the pending table are serialized
// behind mu; transport callbacks, timers and callers only touch shared state
// through that critical section, so a handler synchronously triggering
// another can never corrupt it.
type Session struct {
	opts    Options
	log     zerolog.Logger
	metrics *Metrics
	dialer  *websocket.Dialer
	pending *pendingTable

	mu sync.Mutex
	// state transitions: disconnected -> connecting -> handshaking ->
	// connected -> disconnected (cycle).
	state State
	conn  *websocket.Conn
	// connGen increments per physical connection so callbacks from a dead
	// connection (reader, keepalive, late frames) cannot act on a newer one.
	connGen uint64
	// connectID is the id of the connect request currently in flight; empty
	// when none. Doubles as the "only one connect in flight" guard.
	connectID string
	lastTick  time.Time
	keepalive *keepaliveSupervisor
	reconnect *reconnectScheduler
	closed    bool

	// writeMu serializes frame writes; the websocket supports one concurrent
	// writer only.
	writeMu sync.Mutex
}

// NewSession builds a session. Start must be called to begin connecting.
func NewSession(opts Options) *Session {
	if opts.InvokeTimeout <= 0 {
		opts.InvokeTimeout = 10 * time.Second
	}
	if opts.KeepalivePeriod <= 0 {
		opts.KeepalivePeriod = 30 * time.Second
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = 65 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	s := &Session{
		opts:    opts,
		log:     opts.Logger.With().Str("component", "gateway").Logger(),
		metrics: metrics,
		dialer:  dialer,
		pending: newPendingTable(),
		state:   StateDisconnected,
	}
	s.reconnect = newReconnectScheduler(s, opts.ReconnectDelay)
	return s
}

// Start begins connecting in the background and returns immediately.
func (s *Session) Start() {
	if s.opts.Token != "" {
		if info, err := auth.Inspect(s.opts.Token); err == nil && info.Expired(time.Now()) {
			s.log.Warn().
				Time("expiresAt", info.ExpiresAt).
				Str("subject", info.Subject).
				Msg("configured token is expired; handshake will likely be rejected")
		}
	}
	go s.connect()
}

// Stop closes the session permanently. Pending requests are rejected and no
// reconnect is scheduled.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	gen := s.connGen
	s.mu.Unlock()

	s.reconnect.cancel()
	if conn != nil {
		// Unblocks the read loop, which funnels through teardown.
		conn.Close()
		s.teardown(gen, ErrSessionStopped)
	} else {
		s.pending.failAll(ErrSessionStopped)
	}
}

// Connected reports whether the session is authenticated and usable.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Invoke sends a request and waits for its correlated response. A timeout of
// zero applies the session default. Methods other than "connect" require the
// connected state; the failure is immediate and nothing is written.
func (s *Session) Invoke(method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = s.opts.InvokeTimeout
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionStopped
	}
	if s.conn == nil || s.state == StateDisconnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	if method != wire.MethodConnect && s.state != StateConnected {
		s.mu.Unlock()
		return nil, ErrHandshakeIncomplete
	}
	conn := s.conn
	s.mu.Unlock()

	id := uuid.NewString()
	call := s.pending.add(id, method, timeout, func() {
		if s.pending.reject(id, &TimeoutError{Method: method}) {
			s.metrics.Timeouts.Inc()
			s.metrics.Pending.Set(float64(s.pending.size()))
			s.log.Debug().Str("method", method).Str("id", id).Msg("request timed out")
		}
	})
	s.metrics.Pending.Set(float64(s.pending.size()))

	req := wire.Request{Type: wire.TypeRequest, ID: id, Method: method, Params: params}
	if err := s.writeFrame(conn, req); err != nil {
		s.pending.reject(id, ErrDisconnected)
		s.metrics.Pending.Set(float64(s.pending.size()))
		return nil, ErrDisconnected
	}
	s.metrics.Requests.Inc()

	res := <-call.ch
	s.metrics.Pending.Set(float64(s.pending.size()))
	return res.payload, res.err
}

// connect dials the gateway and starts the handshake. It is the only place
// that moves the session out of disconnected.
func (s *Session) connect() {
	s.mu.Lock()
	if s.closed || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.metrics.ConnectAttempts.Inc()
	dialURL, header := s.dialTarget()
	s.log.Debug().Str("url", s.opts.URL).Msg("dialing gateway")

	conn, resp, err := s.dialer.Dial(dialURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("dial failed")
		s.mu.Lock()
		s.state = StateDisconnected
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			s.reconnect.schedule()
		}
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.connGen++
	gen := s.connGen
	s.conn = conn
	s.state = StateHandshaking
	s.connectID = ""
	s.mu.Unlock()

	go s.readLoop(conn, gen)
	s.sendConnect(conn, gen, "")
}

// dialTarget attaches the configured token both as a query parameter and as
// an Authorization header, for gateways on either convention.
func (s *Session) dialTarget() (string, http.Header) {
	header := http.Header{}
	dialURL := s.opts.URL
	if s.opts.Token != "" {
		header.Set("Authorization", "Bearer "+s.opts.Token)
		if u, err := url.Parse(dialURL); err == nil {
			q := u.Query()
			q.Set("token", s.opts.Token)
			u.RawQuery = q.Encode()
			dialURL = u.String()
		}
	}
	return dialURL, header
}

// sendConnect writes one connect request, guarded so only a single connect is
// in flight per connection. A non-empty nonce produces a v2 (challenge-bound)
// payload.
func (s *Session) sendConnect(conn *websocket.Conn, gen uint64, nonce string) {
	s.mu.Lock()
	if gen != s.connGen || s.state != StateHandshaking || s.closed {
		s.mu.Unlock()
		return
	}
	if s.connectID != "" {
		s.mu.Unlock()
		return
	}
	id := uuid.NewString()
	s.connectID = id
	s.mu.Unlock()

	in := authPayloadInput{
		clientID:   s.opts.ClientID,
		clientMode: s.opts.ClientMode,
		role:       s.opts.Role,
		scopes:     s.opts.Scopes,
		signedAtMs: time.Now().UnixMilli(),
		token:      s.opts.Token,
		nonce:      nonce,
	}
	params := wire.ConnectParams{
		MinProtocol: wire.MinProtocol,
		MaxProtocol: wire.MaxProtocol,
		Client: wire.ClientInfo{
			ID:          s.opts.ClientID,
			DisplayName: s.opts.ClientDisplayName,
			Version:     s.opts.ClientVersion,
			Platform:    s.opts.Platform,
			Mode:        s.opts.ClientMode,
		},
		Role:   s.opts.Role,
		Scopes: s.opts.Scopes,
		Caps:   s.opts.Caps,
		Device: deviceInfo(s.opts.Identity, in),
	}
	if s.opts.Token != "" || s.opts.Password != "" {
		params.Auth = &wire.AuthInfo{Token: s.opts.Token, Password: s.opts.Password}
	}

	req := wire.Request{Type: wire.TypeRequest, ID: id, Method: wire.MethodConnect, Params: params}
	if err := s.writeFrame(conn, req); err != nil {
		s.log.Warn().Err(err).Msg("connect write failed")
		conn.Close()
		s.teardown(gen, err)
		return
	}
	s.log.Debug().Str("id", id).Bool("challenge", nonce != "").Msg("connect sent")
}

// readLoop pumps inbound frames until the connection dies, then routes the
// close through teardown.
func (s *Session) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.teardown(gen, err)
			return
		}
		s.handleMessage(conn, gen, data)
	}
}

// handleMessage decodes and dispatches one inbound frame. Malformed input is
// dropped: noise from the gateway must never tear the connection down.
func (s *Session) handleMessage(conn *websocket.Conn, gen uint64, data []byte) {
	in, err := wire.DecodeInbound(data)
	if err != nil {
		s.log.Debug().Err(err).Msg("dropping malformed frame")
		return
	}
	switch {
	case in.Response != nil:
		s.handleResponse(gen, in.Response)
	case in.Event != nil:
		s.handleEvent(conn, gen, in.Event)
	}
}

func (s *Session) handleResponse(gen uint64, res *wire.Response) {
	s.mu.Lock()
	if gen != s.connGen {
		s.mu.Unlock()
		return
	}
	if s.connectID != "" && res.ID == s.connectID {
		s.connectID = ""
		if res.OK && s.state == StateHandshaking {
			s.state = StateConnected
			s.lastTick = time.Now()
			s.keepalive = startKeepalive(s, gen)
			s.mu.Unlock()
			s.metrics.Connected.Set(1)
			s.log.Info().Msg("gateway session established")
			return
		}
		conn := s.conn
		s.mu.Unlock()
		s.metrics.HandshakeFailures.Inc()
		s.log.Warn().Str("error", res.ErrorMessage()).Msg("handshake rejected")
		// Nothing is usable pre-auth; drop the connection and let the
		// reconnect path take over.
		if conn != nil {
			conn.Close()
		}
		s.teardown(gen, &RemoteError{Method: wire.MethodConnect, Message: res.ErrorMessage()})
		return
	}
	s.mu.Unlock()

	// Late responses for superseded connect attempts (and any other unknown
	// id) fall through to the table, which drops them.
	if res.OK {
		s.pending.resolve(res.ID, res.Payload)
		return
	}
	call := s.pending.take(res.ID)
	if call == nil {
		return
	}
	s.metrics.RemoteErrors.Inc()
	call.ch <- pendingResult{err: &RemoteError{Method: call.method, Message: res.ErrorMessage()}}
}

func (s *Session) handleEvent(conn *websocket.Conn, gen uint64, ev *wire.Event) {
	switch ev.Event {
	case wire.EventTick:
		s.mu.Lock()
		if gen == s.connGen && s.state == StateConnected {
			s.lastTick = time.Now()
		}
		s.mu.Unlock()
	case wire.EventChallenge:
		var payload wire.ChallengePayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.Nonce == "" {
			s.log.Debug().Msg("dropping malformed challenge")
			return
		}
		s.mu.Lock()
		if gen != s.connGen || s.state != StateHandshaking {
			s.mu.Unlock()
			return
		}
		// The in-flight connect is superseded; clear the guard so the
		// nonce-bound retry can go out. Its late response, if any, is ignored
		// because the id no longer matches.
		s.connectID = ""
		s.mu.Unlock()
		s.log.Debug().Msg("connect challenged; re-signing with nonce")
		s.sendConnect(conn, gen, payload.Nonce)
	default:
		if s.opts.OnEvent != nil {
			go s.opts.OnEvent(ev.Event, ev.Payload)
		}
	}
}

// teardown moves the session to disconnected exactly once per connection
// generation: stops keepalive, rejects every pending request, and hands off
// to the reconnect scheduler.
func (s *Session) teardown(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.connGen || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.connectID = ""
	if s.keepalive != nil {
		s.keepalive.stop()
		s.keepalive = nil
	}
	closed := s.closed
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	rejected := s.pending.failAll(ErrDisconnected)
	s.metrics.Connected.Set(0)
	s.metrics.Pending.Set(0)
	s.log.Info().Err(cause).Int("rejectedRequests", rejected).Msg("disconnected")

	if !closed {
		s.reconnect.schedule()
	}
}

// writeFrame serializes writes; the websocket allows one writer at a time.
func (s *Session) writeFrame(conn *websocket.Conn, v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}
