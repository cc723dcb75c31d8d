package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// ensureAttempts bounds the idempotent provisioning retries at boot.
const ensureAttempts = 3

// Postgres implements Index on pgvector. A collection is a table with a
// fixed-dimensionality vector column, an HNSW cosine index and a text
// primary key.
type Postgres struct {
	pool  *pgxpool.Pool
	name  string // validated collection identifier
	table string // quoted form of name
}

var _ Index = (*Postgres)(nil)

func NewPostgres(pool *pgxpool.Pool, collection string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	quoted, err := quoteIdent(collection)
	if err != nil {
		return nil, fmt.Errorf("invalid collection name: %w", err)
	}
	return &Postgres{pool: pool, name: strings.TrimSpace(collection), table: quoted}, nil
}

func quoteIdent(ident string) (string, error) {
	ident = strings.TrimSpace(ident)
	if ident == "" {
		return "", fmt.Errorf("empty identifier")
	}
	for _, r := range ident {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			continue
		}
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	return `"` + ident + `"`, nil
}

// EnsureCollection provisions the collection table and its indexes. Existing
// collections are left untouched; a dimensionality mismatch is an error, not
// a recreate. Transient failures get a small bounded retry with jitter.
func (p *Postgres) EnsureCollection(ctx context.Context, dims int, metric Metric) error {
	if dims <= 0 {
		return fmt.Errorf("ensure collection %s: dims must be > 0", p.name)
	}
	if metric != MetricCosine {
		return fmt.Errorf("ensure collection %s: unsupported metric %q", p.name, metric)
	}

	var err error
	for attempt := 0; attempt < ensureAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("ensure collection %s: %w", p.name, ctx.Err())
			case <-time.After(ensureBackoff(attempt)):
			}
		}
		if err = p.ensureOnce(ctx, dims); err == nil {
			return nil
		}
	}
	return fmt.Errorf("ensure collection %s: %w", p.name, err)
}

func (p *Postgres) ensureOnce(ctx context.Context, dims int) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil && !isDuplicate(err) {
		return fmt.Errorf("ensure vector extension: %w", err)
	}

	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id text PRIMARY KEY,
			content_id text NOT NULL,
			original_name text NOT NULL DEFAULT '',
			location jsonb NOT NULL,
			start_offset_sec double precision NOT NULL DEFAULT 0,
			end_offset_sec double precision NOT NULL DEFAULT 0,
			embedding_scope text NOT NULL DEFAULT 'clip',
			confidence text NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)
	`, p.table, dims)
	if _, err := p.pool.Exec(ctx, q); err != nil && !isDuplicate(err) {
		return fmt.Errorf("create table: %w", err)
	}

	// Never recreate: verify the existing column instead. The cast gets the
	// quoted identifier so case-preserved collection names resolve.
	var typmod int
	checkQ := `SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'`
	if err := p.pool.QueryRow(ctx, checkQ, p.table).Scan(&typmod); err != nil {
		return fmt.Errorf("verify collection: %w", err)
	}
	if typmod != dims {
		return fmt.Errorf("collection has dimensionality %d, want %d; refusing to recreate", typmod, dims)
	}

	idx := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_cosine_idx
		ON %s USING hnsw (embedding vector_cosine_ops)
	`, p.name, p.table)
	if _, err := p.pool.Exec(ctx, idx); err != nil && !isDuplicate(err) {
		return fmt.Errorf("create cosine index: %w", err)
	}

	byContent := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_content_id_idx
		ON %s (content_id)
	`, p.name, p.table)
	if _, err := p.pool.Exec(ctx, byContent); err != nil && !isDuplicate(err) {
		return fmt.Errorf("create content index: %w", err)
	}
	return nil
}

// isDuplicate absorbs races between concurrent process startups: IF NOT
// EXISTS can still lose to another creator and surface duplicate errors.
func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 42P07 duplicate_table, 42710 duplicate_object, 23505 unique_violation
	return pgErr.Code == "42P07" || pgErr.Code == "42710" || pgErr.Code == "23505"
}

func ensureBackoff(attempt int) time.Duration {
	base := 500 * time.Millisecond << (attempt - 1)
	if base > 5*time.Second {
		base = 5 * time.Second
	}
	return base + time.Duration(rand.Int63n(int64(base/2)+1))
}

func (p *Postgres) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (id, content_id, original_name, location, start_offset_sec, end_offset_sec, embedding_scope, confidence, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			content_id = EXCLUDED.content_id,
			original_name = EXCLUDED.original_name,
			location = EXCLUDED.location,
			start_offset_sec = EXCLUDED.start_offset_sec,
			end_offset_sec = EXCLUDED.end_offset_sec,
			embedding_scope = EXCLUDED.embedding_scope,
			confidence = EXCLUDED.confidence,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`, p.table)

	b := &pgx.Batch{}
	for _, pt := range points {
		if pt.ID == "" || pt.Payload.ContentID == "" {
			return fmt.Errorf("upsert into %s: point id and content id are required", p.name)
		}
		loc, err := json.Marshal(pt.Payload.Location)
		if err != nil {
			return fmt.Errorf("upsert point %s: encode location: %w", pt.ID, err)
		}
		b.Queue(q,
			pt.ID,
			pt.Payload.ContentID,
			pt.Payload.OriginalName,
			loc,
			pt.Payload.StartOffsetSec,
			pt.Payload.EndOffsetSec,
			pt.Payload.Scope,
			pt.Payload.ConfidenceHint,
			pgvector.NewVector(pt.Vector),
		)
	}

	br := p.pool.SendBatch(ctx, b)
	defer br.Close()
	for _, pt := range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert point %s into %s: %w", pt.ID, p.name, err)
		}
	}
	return nil
}

// Search runs cosine KNN. Ties break on point id so results are
// deterministic for a given index state.
func (p *Postgres) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		k = DefaultSearchLimit
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("search %s: empty query vector", p.name)
	}
	q := fmt.Sprintf(`
		SELECT id, content_id, original_name, location, start_offset_sec, end_offset_sec, embedding_scope, confidence,
		       1 - (embedding <=> $1) AS similarity
		FROM %s
		ORDER BY embedding <=> $1 ASC, id ASC
		LIMIT $2
	`, p.table)

	rows, err := p.pool.Query(ctx, q, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", p.name, err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var loc []byte
		var sim float64
		if err := rows.Scan(
			&h.ID,
			&h.Payload.ContentID,
			&h.Payload.OriginalName,
			&loc,
			&h.Payload.StartOffsetSec,
			&h.Payload.EndOffsetSec,
			&h.Payload.Scope,
			&h.Payload.ConfidenceHint,
			&sim,
		); err != nil {
			return nil, fmt.Errorf("search %s: %w", p.name, err)
		}
		if err := json.Unmarshal(loc, &h.Payload.Location); err != nil {
			return nil, fmt.Errorf("search %s: decode location of %s: %w", p.name, h.ID, err)
		}
		h.Score = float32(sim)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", p.name, err)
	}
	return hits, nil
}

func (p *Postgres) FindByContentID(ctx context.Context, contentID string) ([]Point, error) {
	q := fmt.Sprintf(`
		SELECT id, content_id, original_name, location, start_offset_sec, end_offset_sec, embedding_scope, confidence
		FROM %s
		WHERE content_id = $1
		ORDER BY start_offset_sec ASC, id ASC
	`, p.table)

	rows, err := p.pool.Query(ctx, q, contentID)
	if err != nil {
		return nil, fmt.Errorf("find %s in %s: %w", contentID, p.name, err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var pt Point
		var loc []byte
		if err := rows.Scan(
			&pt.ID,
			&pt.Payload.ContentID,
			&pt.Payload.OriginalName,
			&loc,
			&pt.Payload.StartOffsetSec,
			&pt.Payload.EndOffsetSec,
			&pt.Payload.Scope,
			&pt.Payload.ConfidenceHint,
		); err != nil {
			return nil, fmt.Errorf("find %s in %s: %w", contentID, p.name, err)
		}
		if err := json.Unmarshal(loc, &pt.Payload.Location); err != nil {
			return nil, fmt.Errorf("find %s in %s: decode location: %w", contentID, p.name, err)
		}
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s in %s: %w", contentID, p.name, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("content %s: %w", contentID, ErrNotFound)
	}
	return points, nil
}

func (p *Postgres) DeleteByContentID(ctx context.Context, contentID string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE content_id = $1`, p.table)
	if _, err := p.pool.Exec(ctx, q, contentID); err != nil {
		return fmt.Errorf("delete %s from %s: %w", contentID, p.name, err)
	}
	return nil
}

func (p *Postgres) ListContentIDs(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(`SELECT DISTINCT content_id FROM %s ORDER BY content_id ASC`, p.table)
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list content ids in %s: %w", p.name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list content ids in %s: %w", p.name, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
