package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// GCS stores the ledger document as a single Cloud Storage object.
type GCS struct {
	client *storage.Client
	bucket string
	object string
}

// DialGCS creates a GCS store using Application Default Credentials.
func DialGCS(ctx context.Context, bucket, object string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	if object == "" {
		object = "ledger.json"
	}
	return &GCS{client: client, bucket: bucket, object: object}, nil
}

// Load implements ledger.Store.
func (g *GCS) Load(ctx context.Context) ([]ledger.Entry, error) {
	r, err := g.client.Bucket(g.bucket).Object(g.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return []ledger.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gcs read %s/%s: %w", g.bucket, g.object, err)
	}
	defer func() { _ = r.Close() }()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read %s/%s: %w", g.bucket, g.object, err)
	}
	return Unmarshal(b)
}

// Save implements ledger.Store.
func (g *GCS) Save(ctx context.Context, entries []ledger.Entry) error {
	b, err := Marshal(entries)
	if err != nil {
		return err
	}
	w := g.client.Bucket(g.bucket).Object(g.object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(b); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}

// Close closes the GCS client.
func (g *GCS) Close() error { return g.client.Close() }
