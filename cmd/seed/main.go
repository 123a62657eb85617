// cmd/seed populates a ledger store with the demonstration batches in
// internal/fixtures (or a fixtures YAML file) for development.
//
// An empty store is seeded from scratch. A populated store is left alone
// unless SEED_APPEND=true, in which case the fixtures are appended after the
// current tail.
//
// Usage:
//
//	go run ./cmd/seed
//	STORE_DRIVER=postgres DATABASE_URL=postgres://... go run ./cmd/seed
//	STORE_DRIVER=file STORE_PATH=data/ledger.json FIXTURES_FILE=my.yaml go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/jmerrifield20/AyuTrack/internal/fixtures"
	"github.com/jmerrifield20/AyuTrack/internal/ledger"
	"github.com/jmerrifield20/AyuTrack/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	set, err := loadSet(os.Getenv("FIXTURES_FILE"))
	if err != nil {
		return err
	}

	cfg := store.Config{
		Driver:        envOr("STORE_DRIVER", "file"),
		Path:          envOr("STORE_PATH", "data/ledger.json"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisKey:      envOr("REDIS_KEY", store.DefaultRedisKey),
		S3: store.S3Config{
			Bucket:   os.Getenv("S3_BUCKET"),
			Key:      os.Getenv("S3_KEY"),
			Region:   os.Getenv("S3_REGION"),
			Endpoint: os.Getenv("S3_ENDPOINT"),
		},
		GCSBucket: os.Getenv("GCS_BUCKET"),
		GCSObject: os.Getenv("GCS_OBJECT"),
	}
	st, closer, err := store.Open(ctx, cfg, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closer.Close()
	fmt.Printf("opened %s store\n", cfg.Driver)

	existing, err := st.Load(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	before := len(existing)

	l := ledger.New(st, ledger.WithSeeder(set.Seeder()))
	if err := l.Open(ctx); err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	if before > 0 {
		appendMode, _ := strconv.ParseBool(os.Getenv("SEED_APPEND"))
		if !appendMode {
			fmt.Printf("store already holds %d entries; set SEED_APPEND=true to append fixtures\n", before)
			return nil
		}
		if err := set.Seeder()(ctx, l); err != nil {
			return err
		}
	}

	for _, e := range l.Entries()[before:] {
		fmt.Printf("  seeded #%d %-32s %s\n", e.Index, e.Record.BatchNumber, e.Hash[:16])
	}
	if err := l.Verify(ctx); err != nil {
		return fmt.Errorf("verify seeded ledger: %w", err)
	}
	fmt.Printf("\nseed complete, %d entries, root %s\n", l.Len(), l.Root())
	return nil
}

func loadSet(path string) (*fixtures.Set, error) {
	if path == "" {
		return fixtures.Default()
	}
	set, err := fixtures.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	return set, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
