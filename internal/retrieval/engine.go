// Package retrieval implements filtered vector-similarity search over
// the chunk corpus.
package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ekinsenler/insurag/internal/errs"
	"github.com/ekinsenler/insurag/internal/model"
	"github.com/ekinsenler/insurag/internal/observability"
	"github.com/ekinsenler/insurag/internal/store"
	"github.com/ekinsenler/insurag/internal/validate"
)

// DefaultLimit bounds result sets when the caller does not cap them.
const DefaultLimit = 50

// Options narrows and bounds a search.
type Options struct {
	// Threshold excludes chunks whose similarity falls below it.
	Threshold *float32
	// Limit caps the result count; zero falls back to the engine's
	// configured default.
	Limit int
	// InsuranceTypes is an OR-filter over the owning document's
	// insurance type. Entries are normalized before use; an empty
	// set after normalization applies no filter.
	InsuranceTypes []string
}

// Engine answers ranked similarity queries against the store.
type Engine struct {
	store        store.Store
	log          *slog.Logger
	audit        *observability.AuditLogger
	defaultLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithAudit attaches an audit logger to the engine.
func WithAudit(a *observability.AuditLogger) Option {
	return func(e *Engine) { e.audit = a }
}

// WithDefaultLimit overrides the system-default result cap.
func WithDefaultLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.defaultLimit = limit
		}
	}
}

// New creates a retrieval engine over the given store.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:        st,
		log:          slog.Default(),
		defaultLimit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NormalizeTypes trims and lower-cases categories, dropping empty
// entries. The result is deduplicated with first-occurrence order
// preserved.
func NormalizeTypes(types ...string) []string {
	seen := make(map[string]bool, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		normalized := strings.ToLower(strings.TrimSpace(t))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

// Search returns chunks ranked by descending cosine similarity to the
// query embedding. The categorical filter is applied before ranking;
// no matches is a valid empty result, not an error.
func (e *Engine) Search(ctx context.Context, embedding []float32, opts Options) ([]model.ScoredChunk, error) {
	types := NormalizeTypes(opts.InsuranceTypes...)
	limit := opts.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}

	ctx, span := observability.StartSearchSpan(ctx, len(types), limit)
	defer span.End()

	if violations := validate.QueryEmbedding(embedding); len(violations) > 0 {
		err := &errs.ValidationError{Resource: "query", Violations: violations}
		observability.RecordError(span, err)
		return nil, err
	}

	started := time.Now()
	results, err := e.store.SearchChunks(ctx, embedding, store.SearchFilter{
		Threshold:      opts.Threshold,
		Limit:          limit,
		InsuranceTypes: types,
	})
	if err != nil {
		storageErr := &errs.StorageError{Op: "search chunks", Err: err}
		observability.RecordError(span, storageErr)
		e.audit.LogSearch(types, limit, 0, time.Since(started), storageErr)
		return nil, storageErr
	}
	if results == nil {
		results = []model.ScoredChunk{}
	}

	observability.RecordSearchOutcome(span, len(results))
	e.audit.LogSearch(types, limit, len(results), time.Since(started), nil)
	e.log.Debug("search finished", "results", len(results), "types", types, "limit", limit)
	return results, nil
}
