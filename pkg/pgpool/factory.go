package pgpool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sirupsen/logrus"

	"github.com/EZFRICA/cloudsql-postgres-manager/pkg/secrets"
)

// ConnectorConfig configures the production connection factory.
type ConnectorConfig struct {
	// AdminUser is the administrative principal used for every connection.
	AdminUser string
	// SocketDir is the Cloud SQL proxy socket directory, typically
	// /cloudsql. The per-instance socket is {SocketDir}/{project}:{region}:{instance}.
	SocketDir string
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
}

// Connector creates database-bound connections through the Cloud SQL proxy
// socket, fetching the admin password from the credential provider once per
// connection.
type Connector struct {
	cfg   ConnectorConfig
	creds secrets.Provider
	log   *logrus.Logger
}

// NewConnector builds the production connection factory.
func NewConnector(cfg ConnectorConfig, creds secrets.Provider, log *logrus.Logger) *Connector {
	if cfg.SocketDir == "" {
		cfg.SocketDir = "/cloudsql"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Connector{cfg: cfg, creds: creds, log: log}
}

// quoteDSNValue single-quotes a keyword/value DSN value so passwords
// containing spaces, quotes or backslashes parse intact.
func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Connect implements Factory. The returned handle is capped at a single
// underlying connection so ownership is exclusive; transactions are always
// explicit, which stands in for disabling autocommit.
func (c *Connector) Connect(ctx context.Context, target Target) (*sql.DB, error) {
	password, err := c.creds.AdminPassword(ctx, target.Project, target.Instance, target.Region)
	if err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf(
		"host=%s/%s:%s:%s dbname=%s user=%s password=%s sslmode=disable connect_timeout=%d",
		c.cfg.SocketDir, target.Project, target.Region, target.Instance,
		target.Database, c.cfg.AdminUser, quoteDSNValue(password),
		int(c.cfg.ConnectTimeout.Seconds()),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach %s: %w", target, err)
	}

	c.log.WithFields(logrus.Fields{
		"instance": target.Project + ":" + target.Region + ":" + target.Instance,
		"database": target.Database,
	}).Debug("Created database connection")

	return db, nil
}
