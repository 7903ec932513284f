package fetch

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
)

const bucketDocuments = "documents"

// CachedFetcher stores fetched documents in a bbolt database. Entries older
// than the TTL are refetched; when the refetch fails with anything but
// ErrNotFound the stale copy is served.
type CachedFetcher struct {
	next   Fetcher
	db     *bolt.DB
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time
}

// OpenCache opens or creates the database at path.
func OpenCache(path string, next Fetcher, ttl time.Duration, logger logging.Logger) (*CachedFetcher, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFetchFailed, "open cache "+path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketDocuments))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.NewIOError(errors.ErrCodeFetchFailed, "initialize cache", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CachedFetcher{next: next, db: db, ttl: ttl, logger: logger, now: time.Now}, nil
}

// Fetch serves location from the cache or the next fetcher.
func (c *CachedFetcher) Fetch(ctx context.Context, location string) (string, error) {
	body, stored, ok := c.get(location)
	if ok && (c.ttl <= 0 || c.now().Sub(stored) < c.ttl) {
		c.logger.Debug(ctx, "fetch cache hit", "location", location)
		return body, nil
	}

	fresh, err := c.next.Fetch(ctx, location)
	if err != nil {
		if stderrors.Is(err, ErrNotFound) {
			c.Invalidate(location)
			return "", err
		}
		if ok {
			c.logger.Warn(ctx, err, "serving stale cache entry", "location", location)
			return body, nil
		}
		return "", err
	}

	if err := c.put(location, fresh); err != nil {
		c.logger.Warn(ctx, err, "cache write failed", "location", location)
	}
	return fresh, nil
}

func (c *CachedFetcher) get(location string) (string, time.Time, bool) {
	var (
		body   string
		stored time.Time
		found  bool
	)
	_ = c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketDocuments)).Get([]byte(location))
		if len(v) < 8 {
			return nil
		}
		stored = time.Unix(0, int64(binary.BigEndian.Uint64(v[:8])))
		body = string(v[8:])
		found = true
		return nil
	})
	return body, stored, found
}

func (c *CachedFetcher) put(location, body string) error {
	v := make([]byte, 8+len(body))
	binary.BigEndian.PutUint64(v[:8], uint64(c.now().UnixNano()))
	copy(v[8:], body)
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketDocuments)).Put([]byte(location), v)
	})
}

// Invalidate drops the entry for location.
func (c *CachedFetcher) Invalidate(location string) {
	_ = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketDocuments)).Delete([]byte(location))
	})
}

// Len returns the number of cached documents.
func (c *CachedFetcher) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketDocuments)).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the database.
func (c *CachedFetcher) Close() error {
	return c.db.Close()
}
