package pgpool

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Manager owns one Pool per target database and hands out connections on
// demand. It is the only structure shared across concurrent reconciliation
// calls for the same target.
type Manager struct {
	factory Factory
	cfg     Config
	log     *logrus.Logger

	mu    sync.Mutex
	pools map[string]*Pool

	sweeper *cron.Cron
}

// NewManager builds a pool manager. Pools are created lazily on first
// Acquire for a target.
func NewManager(factory Factory, cfg Config, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	return &Manager{
		factory: factory,
		cfg:     cfg,
		log:     log,
		pools:   make(map[string]*Pool),
	}
}

// Acquire returns a live connection for the target from its dedicated pool.
func (m *Manager) Acquire(ctx context.Context, target Target) (*sql.DB, error) {
	return m.pool(target).Acquire(ctx)
}

// Release returns a connection to the target's pool.
func (m *Manager) Release(target Target, conn *sql.DB) {
	m.pool(target).Release(conn)
}

// Stats returns a snapshot of every pool keyed by pool key.
func (m *Manager) Stats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Stats, len(m.pools))
	for key, pool := range m.pools {
		out[key] = pool.Stats()
	}
	return out
}

// StartSweeper schedules a periodic sweep of idle connections. The sweep
// probes idle connections and closes dead ones so they are not handed out
// after instance failovers.
func (m *Manager) StartSweeper(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		m.mu.Lock()
		pools := make(map[string]*Pool, len(m.pools))
		for key, pool := range m.pools {
			pools[key] = pool
		}
		m.mu.Unlock()

		for key, pool := range pools {
			if removed := pool.Sweep(ctx); removed > 0 {
				m.log.WithField("pool", key).Infof("Sweep closed %d dead idle connections", removed)
			}
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	m.sweeper = c
	return nil
}

// CloseAll tears down every pool. Called once at process shutdown.
func (m *Manager) CloseAll() {
	if m.sweeper != nil {
		m.sweeper.Stop()
	}

	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*Pool)
	m.mu.Unlock()

	for key, pool := range pools {
		pool.CloseAll()
		m.log.WithField("pool", key).Debug("Closed connection pool")
	}
}

func (m *Manager) pool(target Target) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := target.Key()
	if pool, ok := m.pools[key]; ok {
		return pool
	}
	pool := NewPool(target, m.factory, m.cfg)
	m.pools[key] = pool
	return pool
}
