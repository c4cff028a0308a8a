package localstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/banoo-shop/storefront/internal/platform/database"
)

// OpenOptions selects and configures a backend for Open.
type OpenOptions struct {
	Driver      string
	FileDir     string
	RedisAddr   string
	RedisDB     int
	RedisPrefix string
	PostgresDSN string
}

// Open builds the store named by opts.Driver and returns a func releasing it.
func Open(ctx context.Context, opts OpenOptions, logger *slog.Logger) (Store, func(), error) {
	noop := func() {}
	switch opts.Driver {
	case "memory":
		logger.Warn("Using in-memory client store; carts and sessions are lost on restart")
		return NewMemoryStore(), noop, nil
	case "file":
		fs, err := NewFileStore(opts.FileDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	case "redis":
		rc, err := DialRedis(ctx, opts.RedisAddr, opts.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		prefix := opts.RedisPrefix
		if prefix == "" {
			prefix = DefaultRedisPrefix
		}
		rs := NewRedisStore(rc, prefix)
		return rs, func() {
			if err := rs.Close(); err != nil {
				logger.Warn("Closing redis store failed", "error", err)
			}
		}, nil
	case "postgres":
		pool, err := database.NewDBPool(ctx, opts.PostgresDSN, database.PoolOptions{})
		if err != nil {
			return nil, nil, err
		}
		ps := NewPgStore(pool, logger)
		if err := ps.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Client store connected to PostgreSQL")
		return ps, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
}

// ClientKeys lists every key a client's containers write.
func ClientKeys() []string {
	return []string{KeyCartItems, KeyWishlistProductIDs, KeyAuthToken, KeyAuthRefreshToken}
}
