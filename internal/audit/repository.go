package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// chainLockKey serializes appends so each entry reads the true tail of
// the chain. Appends are rare and small, so a blocking lock is fine here,
// unlike the per-tenant sync path.
var chainLockKey = int64(xxhash.Sum64String("governance:audit:chain"))

// Repository persists the chain in the control schema.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append links a new entry to the chain tail and inserts it. The entry's
// hashes and timestamp are assigned here; caller-provided values are
// ignored.
func (r *Repository) Append(ctx context.Context, e Entry) (Entry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, fmt.Errorf("audit: begin append: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return Entry{}, fmt.Errorf("audit: acquire chain lock: %w", err)
	}

	previous := GenesisHash
	err = tx.QueryRow(ctx,
		`SELECT current_hash FROM platform_audit_logs ORDER BY id DESC LIMIT 1`,
	).Scan(&previous)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("audit: read chain tail: %w", err)
	}

	// Timestamptz stores microseconds; truncate so the hashed value and
	// the stored value agree on verify.
	e.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	e.PreviousHash = previous
	e.CurrentHash, err = ChainHash(previous, e)
	if err != nil {
		return Entry{}, err
	}

	details, err := json.Marshal(e.Details)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal details: %w", err)
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO platform_audit_logs
			(action, target_tenant_id, details, previous_hash, current_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		e.Action, e.TenantID, details, e.PreviousHash, e.CurrentHash, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: insert entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("audit: commit append: %w", err)
	}
	return e, nil
}

// Window returns entries newest first with offset paging.
func (r *Repository) Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, target_tenant_id, details, previous_hash, current_hash, created_at
		FROM platform_audit_logs
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at <= $2)
		  AND ($3::text IS NULL OR action = $3)
		  AND ($4::uuid IS NULL OR target_tenant_id = $4)
		ORDER BY id DESC
		LIMIT $5 OFFSET $6`,
		optionalTime(f.From), optionalTime(f.To),
		optionalText(f.Action), optionalUUID(f.TenantID),
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Chain returns entries oldest first for integrity verification. A
// positive limit restricts the walk to the most recent entries.
func (r *Repository) Chain(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, action, target_tenant_id, details, previous_hash, current_hash, created_at
		FROM platform_audit_logs
		ORDER BY id ASC`
	args := []any{}
	if limit > 0 {
		query = `
		SELECT id, action, target_tenant_id, details, previous_hash, current_hash, created_at
		FROM (
			SELECT id, action, target_tenant_id, details, previous_hash, current_hash, created_at
			FROM platform_audit_logs
			ORDER BY id DESC
			LIMIT $1
		) tail
		ORDER BY id ASC`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: chain query: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.TenantID, &details,
			&e.PreviousHash, &e.CurrentHash, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("audit: decode details: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return out, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
