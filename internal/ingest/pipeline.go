package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lumenreads/lumen/internal/knowledge"
)

// documentTagPrefix marks every node created from a document so chunks can
// be found again by tag.
const documentTagPrefix = "doc:"

// NodeAdder is the slice of the knowledge store the pipeline needs.
type NodeAdder interface {
	Add(ctx context.Context, content string, opts ...knowledge.AddOption) (knowledge.Node, error)
}

// Chunk describes one stored slice of a document.
type Chunk struct {
	ID               string
	SourceDocumentID string
	Index            int
	Total            int
	Content          string
	NodeID           string
}

// Document summarizes an ingested document.
type Document struct {
	ID     string
	Chunks []Chunk
}

// Pipeline ingests documents into a knowledge store.
type Pipeline struct {
	store  NodeAdder
	logger *slog.Logger
}

// NewPipeline creates an ingestion pipeline over the given store.
func NewPipeline(store NodeAdder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, logger: logger}
}

// IngestOption configures AddDocument.
type IngestOption func(*ingestConfig)

type ingestConfig struct {
	chunkSize int
	overlap   int
	kind      knowledge.Kind
	tags      []string
}

// WithChunkSize sets the chunk size in characters. Default: 500.
func WithChunkSize(size int) IngestOption {
	return func(c *ingestConfig) { c.chunkSize = size }
}

// WithOverlap sets the inter-chunk overlap in characters. Default: 50.
func WithOverlap(overlap int) IngestOption {
	return func(c *ingestConfig) { c.overlap = overlap }
}

// WithKind sets the node kind for all chunks. Default: fact.
func WithKind(kind knowledge.Kind) IngestOption {
	return func(c *ingestConfig) { c.kind = kind }
}

// WithTags adds tags to every chunk's node.
func WithTags(tags ...string) IngestOption {
	return func(c *ingestConfig) { c.tags = append(c.tags, tags...) }
}

// AddDocument chunks content and stores every chunk through the knowledge
// store, so each chunk is embedded and auto-connected. All chunks share one
// generated document id, carried as tag and provenance source.
//
// A document with no extractable sentences yields a document with zero
// chunks and no error. A store failure aborts ingestion at that chunk.
func (p *Pipeline) AddDocument(ctx context.Context, content string, opts ...IngestOption) (Document, error) {
	cfg := ingestConfig{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
		kind:      knowledge.KindFact,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	docID := uuid.NewString()
	doc := Document{ID: docID}

	pieces := ChunkText(content, cfg.chunkSize, cfg.overlap)
	if len(pieces) == 0 {
		p.logger.Debug("document yielded no chunks", "document_id", docID,
			"content_length", len(content))
		return doc, nil
	}

	tags := append([]string{documentTagPrefix + docID}, cfg.tags...)
	for i, piece := range pieces {
		node, err := p.store.Add(ctx, piece,
			knowledge.WithKind(cfg.kind),
			knowledge.WithTags(tags...),
			knowledge.WithSources(docID),
		)
		if err != nil {
			return Document{}, fmt.Errorf("store chunk %d/%d of document %s: %w",
				i+1, len(pieces), docID, err)
		}
		doc.Chunks = append(doc.Chunks, Chunk{
			ID:               uuid.NewString(),
			SourceDocumentID: docID,
			Index:            i,
			Total:            len(pieces),
			Content:          piece,
			NodeID:           node.ID,
		})
	}

	p.logger.Debug("document ingested", "document_id", docID,
		"chunks", len(doc.Chunks))
	return doc, nil
}

// DocumentTag returns the tag shared by all nodes of a document, for use
// with tag-based lookups.
func DocumentTag(docID string) string {
	return documentTagPrefix + strings.TrimSpace(docID)
}
