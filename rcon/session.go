package rcon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the liveness of a session, observable by the server pool for
// admission decisions.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDegraded
	StateUnreachable
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

const (
	defaultDialTimeout   = 5 * time.Second
	defaultExecTimeout   = 10 * time.Second
	defaultMaxReconnects = 10
	reconnectBaseBackoff = time.Second
	reconnectMaxBackoff  = 30 * time.Second
)

// Config holds the connection parameters for one game server.
type Config struct {
	ServerID string
	Host     string
	Port     int
	Password string

	// DialTimeout bounds the TCP dial plus auth handshake.
	DialTimeout time.Duration
	// ExecTimeout bounds each Execute call waiting for its response.
	ExecTimeout time.Duration
	// MaxReconnectFailures is the number of consecutive failed reconnect
	// attempts before the session gives up and goes unreachable.
	MaxReconnectFailures int

	// OnStateChange, if set, is invoked for every liveness transition.
	OnStateChange func(serverID string, old, new State)
}

type callResult struct {
	body string
	err  error
}

// Session owns one authenticated, reconnecting RCON transport to a single
// game server. Execute correlates requests and responses by packet id, so
// calls from several goroutines can be in flight at once.
type Session struct {
	cfg Config

	mu      sync.Mutex // guards conn, reader, pending
	conn    net.Conn
	reader  *bufio.Reader
	pending map[int32]chan callResult

	wmu sync.Mutex // serializes packet writes

	seq    atomic.Int32
	state  atomic.Int32
	closed atomic.Bool
}

// NewSession creates a session in the connecting state. Call Start to run
// the connect/reconnect loop, or Connect for a single attempt.
func NewSession(cfg Config) *Session {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = defaultExecTimeout
	}
	if cfg.MaxReconnectFailures <= 0 {
		cfg.MaxReconnectFailures = defaultMaxReconnects
	}
	return &Session{
		cfg:     cfg,
		pending: make(map[int32]chan callResult),
	}
}

// ServerID returns the configured server identifier.
func (s *Session) ServerID() string {
	return s.cfg.ServerID
}

// State returns the current liveness state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(new State) {
	old := State(s.state.Swap(int32(new)))
	if old == new {
		return
	}
	log.WithFields(log.Fields{
		"server": s.cfg.ServerID,
		"from":   old.String(),
		"to":     new.String(),
	}).Info("RCON session state changed")
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(s.cfg.ServerID, old, new)
	}
}

// Start runs the session lifecycle in the background: connect, serve reads,
// reconnect with exponential backoff on transport loss, and go unreachable
// after the configured number of consecutive failures.
func (s *Session) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	backoff := reconnectBaseBackoff
	failures := 0

	for !s.closed.Load() && ctx.Err() == nil {
		if err := s.Connect(ctx); err != nil {
			failures++
			if errors.Is(err, ErrAuth) {
				// A bad password does not heal with retries.
				log.WithField("server", s.cfg.ServerID).WithError(err).Error("RCON authentication failed")
				s.setState(StateUnreachable)
				return
			}
			if failures >= s.cfg.MaxReconnectFailures {
				log.WithFields(log.Fields{
					"server":   s.cfg.ServerID,
					"failures": failures,
				}).Error("RCON reconnect limit reached, marking server unreachable")
				s.setState(StateUnreachable)
				return
			}
			log.WithFields(log.Fields{
				"server":  s.cfg.ServerID,
				"backoff": backoff.String(),
			}).WithError(err).Warn("RCON connect failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMaxBackoff {
				backoff = reconnectMaxBackoff
			}
			continue
		}

		failures = 0
		backoff = reconnectBaseBackoff

		s.readLoop()
		if s.closed.Load() || ctx.Err() != nil {
			return
		}
		s.setState(StateDegraded)
	}
}

// Connect performs one dial plus auth handshake. On success the session is
// connected and ready for Execute; reads are served until the transport
// drops. Fails with ErrConnect on network errors and ErrAuth when the server
// rejects the password.
func (s *Session) Connect(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.setState(StateConnecting)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnect, addr, err)
	}

	reader := bufio.NewReader(conn)
	if err := s.authenticate(conn, reader); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.reader = reader
	s.mu.Unlock()

	s.setState(StateConnected)
	return nil
}

// authenticate sends the AUTH packet and waits for the AUTH_RESPONSE. Some
// servers send an empty RESPONSE_VALUE first; it is skipped.
func (s *Session) authenticate(conn net.Conn, reader *bufio.Reader) error {
	authID := s.seq.Add(1)
	deadline := time.Now().Add(s.cfg.DialTimeout)
	_ = conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	if err := writePacket(conn, packet{ID: authID, Type: packetTypeAuth, Body: s.cfg.Password}); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	for {
		p, err := readPacket(reader)
		if err != nil {
			return fmt.Errorf("%w: auth read: %v", ErrConnect, err)
		}
		if p.Type != packetTypeAuthResponse {
			continue
		}
		if p.ID == authFailedID {
			return ErrAuth
		}
		if p.ID != authID {
			return fmt.Errorf("%w: unexpected auth response id %d", ErrConnect, p.ID)
		}
		return nil
	}
}

// Execute sends one command and blocks until the correlated response arrives,
// the per-call timeout elapses, or the transport drops.
func (s *Session) Execute(ctx context.Context, command string) (string, error) {
	if s.closed.Load() {
		return "", ErrSessionClosed
	}

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return "", ErrConnectionLost
	}
	id := s.seq.Add(1)
	ch := make(chan callResult, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	s.wmu.Lock()
	err := writePacket(conn, packet{ID: id, Type: packetTypeExecCommand, Body: command})
	s.wmu.Unlock()
	if err != nil {
		s.removePending(id)
		conn.Close()
		return "", ErrConnectionLost
	}

	timer := time.NewTimer(s.cfg.ExecTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.body, res.err
	case <-ctx.Done():
		s.removePending(id)
		return "", ctx.Err()
	case <-timer.C:
		s.removePending(id)
		return "", ErrTimeout
	}
}

func (s *Session) removePending(id int32) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// readLoop serves responses until the transport drops, then invalidates all
// in-flight calls with ErrConnectionLost.
func (s *Session) readLoop() {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()

	for {
		p, err := readPacket(reader)
		if err != nil {
			s.teardown(ErrConnectionLost)
			return
		}

		s.mu.Lock()
		ch, ok := s.pending[p.ID]
		if ok {
			delete(s.pending, p.ID)
		}
		s.mu.Unlock()

		if ok {
			ch <- callResult{body: p.Body}
			continue
		}
		// Unsolicited packet (server chat broadcast or keepalive).
		log.WithFields(log.Fields{
			"server": s.cfg.ServerID,
			"type":   p.Type,
		}).Debug("Dropping unsolicited RCON packet")
	}
}

// teardown closes the transport and fails every pending call with err.
func (s *Session) teardown(err error) {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.reader = nil
	}
	for id, ch := range s.pending {
		ch <- callResult{err: err}
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

// Close shuts the session down permanently.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.teardown(ErrSessionClosed)
}
