package pgpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPoolExhausted is returned when no connection became available
	// within the pool timeout. Callers should back off before retrying.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned by Acquire after CloseAll.
	ErrPoolClosed = errors.New("connection pool closed")
)

// Target identifies one database on one instance.
type Target struct {
	Project  string
	Region   string
	Instance string
	Database string
}

// Key returns the pool key for the target. All four fields participate, so
// two databases on the same instance map to distinct pools.
func (t Target) Key() string {
	return t.Project + ":" + t.Region + ":" + t.Instance + ":" + t.Database
}

func (t Target) String() string { return t.Key() }

// Factory creates new database connections for a target.
type Factory interface {
	Connect(ctx context.Context, target Target) (*sql.DB, error)
}

// Config bounds a pool.
type Config struct {
	MaxSize     int
	MaxOverflow int
	Timeout     time.Duration
}

// DefaultConfig returns the standard pool bounds.
func DefaultConfig() Config {
	return Config{MaxSize: 10, MaxOverflow: 20, Timeout: 30 * time.Second}
}

// Pool is a bounded pool of connections to a single target database.
type Pool struct {
	target  Target
	factory Factory
	cfg     Config

	idle chan *sql.DB

	mu      sync.Mutex
	created int
	closed  bool
}

// NewPool builds a pool for target. Connections are created lazily.
func NewPool(target Target, factory Factory, cfg Config) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Pool{
		target:  target,
		factory: factory,
		cfg:     cfg,
		idle:    make(chan *sql.DB, cfg.MaxSize+cfg.MaxOverflow),
	}
}

// Acquire returns a live connection. The caller owns it exclusively until
// Release.
func (p *Pool) Acquire(ctx context.Context) (*sql.DB, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	// Fast path: reuse an idle connection if it is still alive.
	select {
	case conn := <-p.idle:
		if p.alive(ctx, conn) {
			return conn, nil
		}
		p.discard(conn)
	default:
	}

	p.mu.Lock()
	if p.created < p.cfg.MaxSize+p.cfg.MaxOverflow {
		p.created++
		p.mu.Unlock()

		conn, err := p.factory.Connect(ctx, p.target)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, fmt.Errorf("failed to create connection for %s: %w", p.target, err)
		}
		return conn, nil
	}
	p.mu.Unlock()

	// At the overflow ceiling: wait for a release.
	timer := time.NewTimer(p.cfg.Timeout)
	defer timer.Stop()

	select {
	case conn := <-p.idle:
		if p.alive(ctx, conn) {
			return conn, nil
		}
		p.discard(conn)
		// The discarded connection freed capacity.
		p.mu.Lock()
		p.created++
		p.mu.Unlock()
		conn, err := p.factory.Connect(ctx, p.target)
		if err != nil {
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
			return nil, fmt.Errorf("failed to create connection for %s: %w", p.target, err)
		}
		return conn, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrPoolExhausted, p.target, p.cfg.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a connection to the idle queue. If the queue is full the
// connection is closed instead.
func (p *Pool) Release(conn *sql.DB) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		p.discard(conn)
		return
	}

	select {
	case p.idle <- conn:
	default:
		p.discard(conn)
	}
}

// Sweep probes every idle connection and closes the dead ones. It returns
// the number of connections removed.
func (p *Pool) Sweep(ctx context.Context) int {
	removed := 0
	checked := make([]*sql.DB, 0, len(p.idle))

	for {
		select {
		case conn := <-p.idle:
			if p.alive(ctx, conn) {
				checked = append(checked, conn)
			} else {
				p.discard(conn)
				removed++
			}
		default:
			for _, conn := range checked {
				p.Release(conn)
			}
			return removed
		}
	}
}

// CloseAll drains and closes every idle connection and marks the pool
// closed. Connections still checked out are closed by their callers'
// Release.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case conn := <-p.idle:
			conn.Close()
			p.mu.Lock()
			p.created--
			p.mu.Unlock()
		default:
			return
		}
	}
}

// Stats describes the pool's current occupancy.
type Stats struct {
	MaxSize     int `json:"max_size"`
	MaxOverflow int `json:"max_overflow"`
	Created     int `json:"created"`
	Idle        int `json:"idle"`
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	created := p.created
	p.mu.Unlock()
	return Stats{
		MaxSize:     p.cfg.MaxSize,
		MaxOverflow: p.cfg.MaxOverflow,
		Created:     created,
		Idle:        len(p.idle),
	}
}

// alive probes the connection with a lightweight query.
func (p *Pool) alive(ctx context.Context, conn *sql.DB) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := conn.ExecContext(probeCtx, "SELECT 1")
	return err == nil
}

func (p *Pool) discard(conn *sql.DB) {
	conn.Close()
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
}
