package fingerprint

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorekeep/lorekeep/pkg/knowledge"
)

// PgPersister stores fingerprints in Postgres so deduplication state
// survives restarts. Hashes are stored as the two's-complement int64 of
// the unsigned value.
type PgPersister struct {
	pool *pgxpool.Pool
}

// NewPgPersister wraps a pgx pool.
func NewPgPersister(pool *pgxpool.Pool) *PgPersister {
	return &PgPersister{pool: pool}
}

const loadAllSQL = `
SELECT content_hash, kind, node_id, normalized_text, source_files
FROM fingerprints;
`

const upsertSQL = `
INSERT INTO fingerprints (content_hash, kind, node_id, normalized_text, source_files)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (content_hash, kind) DO UPDATE
SET node_id         = EXCLUDED.node_id,
    normalized_text = EXCLUDED.normalized_text,
    source_files    = EXCLUDED.source_files;
`

// LoadAll reads every persisted fingerprint.
func (p *PgPersister) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, loadAllSQL)
	if err != nil {
		return nil, fmt.Errorf("querying fingerprints: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			hash        int64
			kindValue   string
			nodeID      string
			normalized  string
			sourceFiles []string
		)
		if err := rows.Scan(&hash, &kindValue, &nodeID, &normalized, &sourceFiles); err != nil {
			return nil, fmt.Errorf("scanning fingerprint: %w", err)
		}
		kind, err := knowledge.ParseKind(kindValue)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Hash:        uint64(hash),
			Kind:        kind,
			NodeID:      nodeID,
			Normalized:  normalized,
			SourceFiles: sourceFiles,
		})
	}
	return entries, rows.Err()
}

// Upsert writes or updates one fingerprint row.
func (p *PgPersister) Upsert(ctx context.Context, entry Entry) error {
	_, err := p.pool.Exec(ctx, upsertSQL,
		int64(entry.Hash),
		string(entry.Kind),
		entry.NodeID,
		entry.Normalized,
		entry.SourceFiles,
	)
	return err
}
