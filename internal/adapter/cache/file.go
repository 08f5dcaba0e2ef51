// Package cache stores completion texts on disk, with an optional in-memory
// LRU in front.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Travbz/doc-smith/internal/domain"
)

// FileCache keeps one file per key, named by the SHA-256 of the key. An
// entry older than the TTL (by file mtime) is deleted on read and reported
// as a miss.
type FileCache struct {
	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.Cache = (*FileCache)(nil)

// NewFileCache creates dir if needed. A zero ttl never expires entries.
func NewFileCache(dir string, ttl time.Duration, logger *slog.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileCache{dir: dir, ttl: ttl, now: time.Now, logger: logger}, nil
}

func (c *FileCache) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".txt")
}

// Get implements domain.Cache.
func (c *FileCache) Get(ctx context.Context, key string) (string, bool) {
	v, _, ok := c.getStamped(ctx, key)
	return v, ok
}

// getStamped is Get that also returns the entry's write time.
func (c *FileCache) getStamped(_ context.Context, key string) (string, time.Time, bool) {
	p := c.path(key)
	info, err := os.Stat(p)
	if err != nil {
		return "", time.Time{}, false
	}
	if c.ttl > 0 && c.now().Sub(info.ModTime()) > c.ttl {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.logger.Debug("cache: remove expired entry failed", "error", err)
		}
		return "", time.Time{}, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		c.logger.Debug("cache: read failed", "error", err)
		return "", time.Time{}, false
	}
	return string(data), info.ModTime(), true
}

// Set implements domain.Cache. Write failures are logged and dropped.
func (c *FileCache) Set(_ context.Context, key, value string) {
	p := c.path(key)
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		c.logger.Warn("cache: write failed", "error", err)
		return
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		c.logger.Warn("cache: write failed", "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warn("cache: write failed", "error", err)
		return
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		c.logger.Warn("cache: write failed", "error", err)
	}
}

// Purge removes every entry older than the TTL and returns how many were
// removed.
func (c *FileCache) Purge() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	removed := 0
	now := c.now()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > c.ttl {
			if os.Remove(filepath.Join(c.dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}
