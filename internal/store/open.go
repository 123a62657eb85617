package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// Config selects and configures a store driver.
type Config struct {
	Driver      string // memory, file, postgres, sqlite, redis, s3, gcs
	Path        string // file and sqlite
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	S3 S3Config

	GCSBucket string
	GCSObject string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type closerFunc func()

func (f closerFunc) Close() error { f(); return nil }

// Open builds the store named by cfg.Driver. The returned Closer releases any
// connection the store holds and is always non-nil on success.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (ledger.Store, io.Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemory(), nopCloser{}, nil

	case "file":
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("store.path is required for the file driver")
		}
		return NewFile(cfg.Path), nopCloser{}, nil

	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("database.url is required for the postgres driver")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return NewPostgres(pool, logger), closerFunc(pool.Close), nil

	case "sqlite":
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("store.path is required for the sqlite driver")
		}
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case "redis":
		r := DialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKey)
		return r, r, nil

	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, nil, fmt.Errorf("s3.bucket is required for the s3 driver")
		}
		s, err := DialS3(ctx, cfg.S3)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil

	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, nil, fmt.Errorf("gcs.bucket is required for the gcs driver")
		}
		g, err := DialGCS(ctx, cfg.GCSBucket, cfg.GCSObject)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
