// Package store defines the persistence contract shared by the
// ingestion and retrieval engines. Implementations live in the
// postgres and memory subpackages.
package store

import (
	"context"

	"github.com/ekinsenler/insurag/internal/model"
)

// SearchFilter narrows a similarity search. InsuranceTypes entries are
// expected to be normalized (trimmed, lower-cased) by the caller; an
// empty slice applies no categorical filter.
type SearchFilter struct {
	// Threshold excludes results whose similarity is below it. Nil
	// means no threshold.
	Threshold *float32
	// Limit caps the number of returned rows. Zero means no cap at
	// the store level; engines always pass a positive limit.
	Limit int
	// InsuranceTypes is an OR-filter over the owning document's
	// insurance_type column.
	InsuranceTypes []string
}

// Store provides persistence for the insurance corpus. Lookup methods
// return (nil, nil) when the record does not exist; only genuine store
// failures produce an error. Uniqueness and referential constraints
// are additionally enforced by the implementation as the authoritative
// backstop behind the engines' pre-checks.
type Store interface {
	// InsurerExists reports whether an insurer with the exact name exists.
	InsurerExists(ctx context.Context, name string) (bool, error)
	// GetInsurer fetches an insurer by id.
	GetInsurer(ctx context.Context, id string) (*model.Insurer, error)
	// GetInsurerByName fetches an insurer by exact name.
	GetInsurerByName(ctx context.Context, name string) (*model.Insurer, error)
	// ListInsurers returns all insurers.
	ListInsurers(ctx context.Context) ([]model.Insurer, error)

	// DocumentTitleExists reports whether the insurer already owns a
	// document with the given title.
	DocumentTitleExists(ctx context.Context, insurerID, title string) (bool, error)
	// GetDocument fetches a document by id.
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// ListDocumentsByInsurer returns the documents owned by an insurer.
	ListDocumentsByInsurer(ctx context.Context, insurerID string) ([]model.Document, error)
	// CountChunks returns the number of chunks owned by a document.
	CountChunks(ctx context.Context, documentID string) (int64, error)

	// CreateInsurer persists a new insurer and fills its generated id.
	CreateInsurer(ctx context.Context, insurer *model.Insurer) error
	// CreateDocument persists a new document and fills its generated id.
	CreateDocument(ctx context.Context, doc *model.Document) error
	// CreateChunk persists a single chunk and fills its generated id.
	CreateChunk(ctx context.Context, chunk *model.DocumentChunk) error
	// CreateChunkBatch persists the chunks in one multi-row write.
	// The write is atomic: either every chunk in the batch is
	// persisted or none is.
	CreateChunkBatch(ctx context.Context, chunks []model.DocumentChunk) error

	// SearchChunks returns chunks ranked by descending cosine
	// similarity to the query embedding, ties broken by the chunks'
	// insertion sequence.
	SearchChunks(ctx context.Context, embedding []float32, filter SearchFilter) ([]model.ScoredChunk, error)

	// Close releases the underlying connection.
	Close() error
}
