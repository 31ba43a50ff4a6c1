// Package semindex provides the semantic vector index over work documents.
//
// The index partitions storage into one collection per entity kind (emails,
// status updates, deliverables) backed by chromem-go, an embeddable vector
// database with persistence to gob files. The index is a derived structure:
// the relational store is the system of record, and the index is allowed to
// lag or be absent for any given entity.
package semindex

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ledgerline/workassist/internal/embeddings"
)

// tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("workassist.semindex")

// Sentinel errors for index operations.
var (
	// ErrInvalidKind is returned for an unknown entity kind.
	ErrInvalidKind = errors.New("invalid entity kind")

	// ErrEmptyQuery is returned when a search query is empty.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrEmptyText is returned when upserting empty document text.
	ErrEmptyText = errors.New("document text cannot be empty")
)

// Kind partitions the index into independent collections per entity type.
type Kind string

// Supported entity kinds. The values double as collection names.
const (
	KindEmail        Kind = "emails"
	KindStatusUpdate Kind = "status_updates"
	KindDeliverable  Kind = "deliverables"
)

// Kinds lists every collection the index manages.
var Kinds = []Kind{KindEmail, KindStatusUpdate, KindDeliverable}

// Valid reports whether k names a known collection.
func (k Kind) Valid() bool {
	switch k {
	case KindEmail, KindStatusUpdate, KindDeliverable:
		return true
	}
	return false
}

// Filter restricts search results by metadata. Eq predicates are pushed
// down to the store; In predicates ("value in set") are applied to the
// returned candidates. Range queries are not supported.
type Filter struct {
	Eq map[string]string
	In map[string][]string
}

// Result is one semantic search hit. Score is similarity (1 - distance in
// the store's native metric); callers may only assume that a higher score
// means more similar.
type Result struct {
	VectorID string         `json:"vector_id"`
	Text     string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Score    float32        `json:"similarity_score"`
}

// Config holds configuration for the index.
type Config struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// Index is the chromem-backed semantic index.
type Index struct {
	db       *chromem.DB
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// New creates the index, opening or creating the persistent database and
// the per-kind collections.
func New(cfg Config, embedder embeddings.Embedder, logger *zap.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", cfg.Path, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	idx := &Index{
		db:       db,
		embedder: embedder,
		logger:   logger,
	}

	embedFunc := embeddings.ToEmbeddingFunc(embedder)
	for _, kind := range Kinds {
		if _, err := db.GetOrCreateCollection(string(kind), nil, embedFunc); err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", kind, err)
		}
	}

	logger.Info("semantic index initialized",
		zap.String("path", cfg.Path),
		zap.Bool("compress", cfg.Compress),
	)

	return idx, nil
}

// VectorID derives the deterministic vector id for an entity. Deriving ids
// from (kind, entityID) makes upsert idempotent: re-indexing the same
// entity overwrites rather than duplicates, and replays are safe.
func VectorID(kind Kind, entityID string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s", kind, entityID)))
	return hex.EncodeToString(sum[:])
}

// Upsert indexes an entity's text and metadata, returning the vector id.
// Re-upserting the same (kind, entityID) replaces the stored document.
func (i *Index) Upsert(ctx context.Context, kind Kind, entityID, text string, metadata map[string]any) (string, error) {
	ctx, span := tracer.Start(ctx, "Index.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("entity_id", entityID),
	)

	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	collection := i.collection(kind)
	vectorID := VectorID(kind, entityID)

	embedding, err := i.embedder.EmbedQuery(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("embedding document: %w", err)
	}

	doc := chromem.Document{
		ID:        vectorID,
		Content:   text,
		Metadata:  flattenMetadata(metadata),
		Embedding: embedding,
	}
	if err := collection.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("adding document to %s: %w", kind, err)
	}

	span.SetStatus(codes.Ok, "success")
	i.logger.Debug("indexed entity",
		zap.String("kind", string(kind)),
		zap.String("entity_id", entityID),
		zap.String("vector_id", vectorID),
	)

	return vectorID, nil
}

// Search performs nearest-neighbor search over one kind. Results are
// ordered by descending similarity. An empty collection yields an empty
// slice, not an error.
func (i *Index) Search(ctx context.Context, kind Kind, query string, maxResults int, filter *Filter) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "Index.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("kind", string(kind)),
		attribute.Int("max_results", maxResults),
	)

	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if maxResults <= 0 {
		return nil, fmt.Errorf("maxResults must be positive, got %d", maxResults)
	}

	collection := i.collection(kind)

	// chromem requires nResults <= document count.
	docCount := collection.Count()
	if docCount == 0 {
		return []Result{}, nil
	}
	k := maxResults
	if k > docCount {
		k = docCount
	}

	var where map[string]string
	if filter != nil && len(filter.Eq) > 0 {
		where = filter.Eq
	}

	hits, err := collection.Query(ctx, query, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", kind, err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		meta := expandMetadata(hit.Metadata)
		if filter != nil && !matchesInFilter(meta, filter.In) {
			continue
		}
		results = append(results, Result{
			VectorID: hit.ID,
			Text:     hit.Content,
			Metadata: meta,
			Score:    hit.Similarity,
		})
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	i.logger.Debug("searched index",
		zap.String("kind", string(kind)),
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// SearchAll searches every collection and returns the hits keyed by kind.
func (i *Index) SearchAll(ctx context.Context, query string, maxResults int, filter *Filter) (map[Kind][]Result, error) {
	all := make(map[Kind][]Result, len(Kinds))
	for _, kind := range Kinds {
		results, err := i.Search(ctx, kind, query, maxResults, filter)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", kind, err)
		}
		all[kind] = results
	}
	return all, nil
}

// Delete removes an entity's document from the index. Deleting an entity
// that was never indexed is a no-op.
func (i *Index) Delete(ctx context.Context, kind Kind, entityID string) error {
	ctx, span := tracer.Start(ctx, "Index.Delete")
	defer span.End()

	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	collection := i.collection(kind)
	vectorID := VectorID(kind, entityID)

	if err := collection.Delete(ctx, nil, nil, vectorID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting from %s: %w", kind, err)
	}

	span.SetStatus(codes.Ok, "success")
	i.logger.Debug("deleted entity from index",
		zap.String("kind", string(kind)),
		zap.String("entity_id", entityID),
	)
	return nil
}

// collection returns the chromem collection for a kind. Collections are
// created in New, so this never returns nil for a valid kind.
func (i *Index) collection(kind Kind) *chromem.Collection {
	return i.db.GetCollection(string(kind), embeddings.ToEmbeddingFunc(i.embedder))
}

// flattenMetadata converts a metadata payload to chromem's string map.
// List values are JSON-encoded, matching how they are expanded on the way
// out; everything else is formatted with %v.
func flattenMetadata(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	flat := make(map[string]string, len(metadata))
	for key, value := range metadata {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			flat[key] = v
		case []string:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			flat[key] = string(encoded)
		default:
			flat[key] = fmt.Sprintf("%v", v)
		}
	}
	return flat
}

// expandMetadata converts stored string metadata back to a typed payload,
// decoding JSON-encoded lists.
func expandMetadata(metadata map[string]string) map[string]any {
	expanded := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if strings.HasPrefix(value, "[") {
			var list []string
			if err := json.Unmarshal([]byte(value), &list); err == nil {
				expanded[key] = list
				continue
			}
		}
		expanded[key] = value
	}
	return expanded
}

// matchesInFilter reports whether metadata satisfies every "value in set"
// predicate.
func matchesInFilter(metadata map[string]any, in map[string][]string) bool {
	for key, allowed := range in {
		raw, ok := metadata[key]
		if !ok {
			return false
		}
		value, ok := raw.(string)
		if !ok {
			return false
		}
		found := false
		for _, candidate := range allowed {
			if candidate == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
