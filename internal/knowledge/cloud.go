package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// pgQuerier is the common interface satisfied by both *pgxpool.Pool and
// pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// cloudSchema is applied at construction. Offloaded records keep their
// embedding so a future rebuild can re-rank without re-embedding.
const cloudSchema = `
CREATE TABLE IF NOT EXISTS knowledge_nodes (
	id           TEXT PRIMARY KEY,
	content      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	importance   DOUBLE PRECISION NOT NULL,
	credibility  DOUBLE PRECISION NOT NULL,
	embedding    vector(384) NOT NULL,
	metadata     JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	accessed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS knowledge_nodes_kind_idx ON knowledge_nodes (kind);
`

const upsertNodeSQL = `INSERT INTO knowledge_nodes
	(id, content, kind, importance, credibility, embedding, metadata, created_at, accessed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		content = excluded.content, kind = excluded.kind,
		importance = excluded.importance, credibility = excluded.credibility,
		embedding = excluded.embedding, metadata = excluded.metadata,
		accessed_at = excluded.accessed_at`

// cloudMetadata carries the node fields without dedicated columns.
type cloudMetadata struct {
	Connections []string `json:"connections,omitempty"`
	Sources     []string `json:"sources,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// PGCloudTier stores offloaded nodes in PostgreSQL with pgvector.
//
// PGCloudTier is safe for concurrent use by multiple goroutines.
type PGCloudTier struct {
	q      pgQuerier
	logger *slog.Logger
}

// NewPGCloudTier creates the cloud tier over pool and ensures the schema
// exists.
func NewPGCloudTier(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PGCloudTier, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &PGCloudTier{q: pool, logger: logger}
	if _, err := t.q.Exec(ctx, cloudSchema); err != nil {
		return nil, fmt.Errorf("ensure cloud schema: %w", err)
	}
	return t, nil
}

// Put upserts an offloaded node record.
func (t *PGCloudTier) Put(ctx context.Context, node Node) error {
	meta, err := json.Marshal(cloudMetadata{
		Connections: node.Connections,
		Sources:     node.Sources,
		Tags:        node.Tags,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", node.ID, err)
	}

	_, err = t.q.Exec(ctx, upsertNodeSQL,
		node.ID, node.Content, string(node.Kind),
		node.Importance, node.Credibility,
		pgvector.NewVector(node.Embedding), meta,
		node.CreatedAt, node.LastAccessedAt)
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", node.ID, err)
	}

	t.logger.Debug("offloaded node to cloud tier", "id", node.ID)
	return nil
}

// Get fetches an offloaded node record by id.
func (t *PGCloudTier) Get(ctx context.Context, id string) (Node, error) {
	row := t.q.QueryRow(ctx,
		`SELECT id, content, kind, importance, credibility, embedding, metadata, created_at, accessed_at
		 FROM knowledge_nodes WHERE id = $1`, id)

	var (
		n        Node
		kind     string
		emb      pgvector.Vector
		metaRaw  []byte
		created  time.Time
		accessed time.Time
	)
	err := row.Scan(&n.ID, &n.Content, &kind, &n.Importance, &n.Credibility,
		&emb, &metaRaw, &created, &accessed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if err != nil {
		return Node{}, fmt.Errorf("fetch node %s: %w", id, err)
	}

	var meta cloudMetadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		t.logger.Warn("corrupt cloud metadata", "id", id, "error", err)
	}

	n.Kind = Kind(kind)
	n.Embedding = emb.Slice()
	n.Connections = meta.Connections
	n.Sources = meta.Sources
	n.Tags = meta.Tags
	n.Tier = TierCloud
	n.CreatedAt = created
	n.LastAccessedAt = accessed
	return n, nil
}
