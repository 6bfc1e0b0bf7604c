package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/AngelCh415/shopads/internal/config"
	"github.com/AngelCh415/shopads/internal/credentials"
)

// Backends opens the shared token-cache connection once and hands each
// session its own keyed credential store.
type Backends struct {
	kind string
	path string
	db   *gorm.DB
	rdb  *redis.Client
}

func OpenBackends(ctx context.Context, cfg config.TokenCacheConfig) (*Backends, error) {
	b := &Backends{kind: cfg.Backend, path: cfg.Path}
	switch cfg.Backend {
	case "sqlite":
		db, err := credentials.OpenDB(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.db = db
	case "redis":
		rdb, err := credentials.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.rdb = rdb
	case "file", "none", "":
	default:
		return nil, fmt.Errorf("unknown token cache backend %q", cfg.Backend)
	}
	return b, nil
}

func (b *Backends) Kind() string { return b.kind }

// For returns the persisted store for session id, or nil when tokens live
// only in memory.
func (b *Backends) For(id string) (credentials.Store, error) {
	switch b.kind {
	case "sqlite":
		return credentials.NewDBStore(b.db, "meta_token:"+id)
	case "redis":
		return credentials.NewRedisStore(b.rdb, id), nil
	case "file":
		return credentials.NewFileStore(filePath(b.path, id)), nil
	}
	return nil, nil
}

// filePath keeps the configured path for the default session and suffixes
// the id for the others: .cache/meta_token.json -> .cache/meta_token.<id>.json
func filePath(base, id string) string {
	if base == "" {
		base = credentials.DefaultFilePath
	}
	if id == DefaultID {
		return base
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "." + id + ext
}

func (b *Backends) Close() error {
	if b.rdb != nil {
		return b.rdb.Close()
	}
	if b.db != nil {
		sqlDB, err := b.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
