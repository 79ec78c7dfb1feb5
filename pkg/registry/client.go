package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

const (
	recordPrefix  = "role_registry:"
	historyPrefix = "role_registry:history:"

	// cacheEntries bounds the read cache; one entry per database is tiny,
	// so this is generous.
	cacheEntries = 256
	cacheTTL     = 30 * time.Second
)

// Client reads and writes registry records in Redis. A small TTL-bounded
// LRU cache absorbs repeated reads from status endpoints; every write
// invalidates the cached record for that database. The cache holds the
// marshaled document, never a live Record, so callers can mutate what Get
// returns without affecting later reads.
type Client struct {
	client *redis.Client
	cache  *lru.LRU[string, []byte]
	log    *logrus.Logger
}

// NewClient connects to Redis at redisURL and verifies the connection.
func NewClient(redisURL string, log *logrus.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewClientWithRedis(client, log), nil
}

// NewClientWithRedis wraps an existing Redis client. Used by tests and by
// callers that manage the connection themselves.
func NewClientWithRedis(client *redis.Client, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		client: client,
		cache:  lru.NewLRU[string, []byte](cacheEntries, nil, cacheTTL),
		log:    log,
	}
}

// Get returns the record for one database, or (nil, nil) if none exists.
// The returned Record is the caller's to mutate; it shares no state with
// the cache or with other callers.
func (c *Client) Get(ctx context.Context, project, instance, database string) (*Record, error) {
	key := Key(project, instance, database)

	if data, ok := c.cache.Get(key); ok {
		var record Record
		if err := json.Unmarshal(data, &record); err == nil {
			return &record, nil
		}
		c.cache.Remove(key)
	}

	data, err := c.client.Get(ctx, recordPrefix+key).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("registry get failed for %s: %w", key, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		// Corrupt documents are unrecoverable; drop them so the next
		// initialization starts fresh.
		c.client.Del(ctx, recordPrefix+key)
		return nil, fmt.Errorf("failed to unmarshal registry record %s: %w", key, err)
	}

	c.cache.Add(key, []byte(data))
	return &record, nil
}

// Save overwrites the record for one database. Last writer wins; there is
// no version check.
func (c *Client) Save(ctx context.Context, project, instance, database string, record *Record) error {
	key := Key(project, instance, database)

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal registry record %s: %w", key, err)
	}

	if err := c.client.Set(ctx, recordPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("registry save failed for %s: %w", key, err)
	}

	c.cache.Remove(key)

	c.log.WithFields(logrus.Fields{
		"registry_key": key,
		"roles":        len(record.Roles),
	}).Debug("Registry record saved")
	return nil
}

// AppendHistory atomically appends one entry to the database's history
// list. Appends survive concurrent Save overwrites.
func (c *Client) AppendHistory(ctx context.Context, project, instance, database string, entry HistoryEntry) error {
	key := Key(project, instance, database)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry for %s: %w", key, err)
	}

	if err := c.client.RPush(ctx, historyPrefix+key, data).Err(); err != nil {
		return fmt.Errorf("history append failed for %s: %w", key, err)
	}
	return nil
}

// History returns every recorded entry for one database, oldest first.
func (c *Client) History(ctx context.Context, project, instance, database string) ([]HistoryEntry, error) {
	key := Key(project, instance, database)

	items, err := c.client.LRange(ctx, historyPrefix+key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history read failed for %s: %w", key, err)
	}

	entries := make([]HistoryEntry, 0, len(items))
	for _, item := range items {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			// Skip undecodable entries rather than failing the whole read.
			c.log.WithField("registry_key", key).WithError(err).Warn("Skipping corrupt history entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ping checks Redis connectivity, for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
