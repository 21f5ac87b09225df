package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"subscraper/pkg/config"
)

// Key namespaces
const (
	NamespaceHTTP       = "http"
	NamespaceEnrichment = "reddit:info"
)

// Store is a persistent byte-value cache shared by the request cache and
// the enrichment cache. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the value for key. A missing or expired key is reported
	// with ok == false and a nil error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Len counts live entries
	Len(ctx context.Context) (int, error)
	// Purge drops every entry
	Purge(ctx context.Context) error
	Close() error
}

// Key builds a namespaced cache key. The parts are hashed so arbitrary
// lengths (long id lists, full URLs) map to fixed-size keys.
func Key(namespace string, parts ...string) string {
	h, _ := blake2b.New256(nil)
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// Open creates the store selected by cfg.Backend
func Open(cfg config.CacheConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case config.BackendSQLite, "":
		return OpenSQLite(cfg.Path)
	case config.BackendRedis:
		return OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case config.BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
