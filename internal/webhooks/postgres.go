package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores subscriptions in the webhook_subscriptions table
// (migrations/002_webhook_subscriptions.up.sql).
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const subscriptionColumns = `id, owner, url, events, secret, active, created_at`

// Create inserts a new webhook subscription.
func (r *PostgresRepository) Create(ctx context.Context, sub *Subscription) error {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true

	query := `INSERT INTO webhook_subscriptions (` + subscriptionColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.Owner, sub.URL, sub.Events, sub.Secret, sub.Active, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// ListByOwner returns an owner's subscriptions, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string) ([]*Subscription, error) {
	return r.list(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions
		 WHERE owner = $1 ORDER BY created_at DESC`, owner)
}

// ListByEvent returns the active subscriptions listening for eventType, oldest first.
func (r *PostgresRepository) ListByEvent(ctx context.Context, eventType string) ([]*Subscription, error) {
	return r.list(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions
		 WHERE active = true AND $1 = ANY(events) ORDER BY created_at`, eventType)
}

// Delete removes a subscription.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]*Subscription, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	if err := row.Scan(&sub.ID, &sub.Owner, &sub.URL, &sub.Events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}
