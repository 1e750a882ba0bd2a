// Package pool owns one RCON session and one command queue per configured
// game server. Servers make progress independently: a stall or failure on
// one never blocks dispatch on another.
package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bebewat/wrecksshop/rcon"
)

// ServerConfig is the connection data for one game server, supplied by the
// configuration loader and never hot-parsed here.
type ServerConfig struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

// Config assembles a pool.
type Config struct {
	Servers []ServerConfig

	// Queue tuning shared by all servers.
	MaxInFlight  int
	MaxAttempts  int
	RetryBackoff time.Duration

	// Session tuning shared by all servers.
	ExecTimeout          time.Duration
	MaxReconnectFailures int

	// OnStateChange observes per-server liveness transitions.
	OnStateChange func(serverID string, old, new rcon.State)
}

type server struct {
	session *rcon.Session
	queue   *Queue
}

// ServerPool routes commands by server id and isolates failures per server.
type ServerPool struct {
	mu      sync.RWMutex
	servers map[string]*server
}

// New builds sessions and queues for every configured server. Nothing
// connects until Start.
func New(cfg Config) *ServerPool {
	p := &ServerPool{servers: make(map[string]*server, len(cfg.Servers))}
	qcfg := QueueConfig{
		MaxInFlight:  cfg.MaxInFlight,
		MaxAttempts:  cfg.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff,
	}
	for _, sc := range cfg.Servers {
		sess := rcon.NewSession(rcon.Config{
			ServerID:             sc.ID,
			Host:                 sc.Host,
			Port:                 sc.Port,
			Password:             sc.Password,
			ExecTimeout:          cfg.ExecTimeout,
			MaxReconnectFailures: cfg.MaxReconnectFailures,
			OnStateChange:        cfg.OnStateChange,
		})
		p.servers[sc.ID] = &server{
			session: sess,
			queue:   NewQueue(sc.ID, sess, qcfg),
		}
	}
	return p
}

// Start launches every session's connect loop and every queue's workers.
func (p *ServerPool) Start(ctx context.Context) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, srv := range p.servers {
		srv.session.Start(ctx)
		srv.queue.Start(ctx)
	}
}

// Execute routes one command through the target server's queue and blocks
// until it settles. Unknown servers fail with ErrServerUnavailable.
func (p *ServerPool) Execute(ctx context.Context, serverID, command, correlationID string) (string, error) {
	p.mu.RLock()
	srv, ok := p.servers[serverID]
	p.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: unknown server %q", ErrServerUnavailable, serverID)
	}
	out := srv.queue.Do(ctx, command, correlationID)
	return out.Response, out.Err
}

// ServerState reports the liveness of one server. Unknown ids read as
// unreachable.
func (p *ServerPool) ServerState(serverID string) rcon.State {
	p.mu.RLock()
	srv, ok := p.servers[serverID]
	p.mu.RUnlock()
	if !ok {
		return rcon.StateUnreachable
	}
	return srv.session.State()
}

// ServerIDs returns the configured server ids in stable order.
func (p *ServerPool) ServerIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.servers))
	for id := range p.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close shuts every session down.
func (p *ServerPool) Close() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, srv := range p.servers {
		srv.session.Close()
	}
}
