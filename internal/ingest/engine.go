// Package ingest implements validated, deduplicated insertion of
// insurers, documents and embedded chunks.
package ingest

import (
	"context"
	"log/slog"

	"github.com/pgvector/pgvector-go"

	"github.com/ekinsenler/insurag/internal/errs"
	"github.com/ekinsenler/insurag/internal/model"
	"github.com/ekinsenler/insurag/internal/observability"
	"github.com/ekinsenler/insurag/internal/store"
	"github.com/ekinsenler/insurag/internal/validate"
)

// Engine orchestrates writes against the store. It pre-checks
// uniqueness and references to produce typed errors; the store's own
// constraints remain the authoritative backstop.
type Engine struct {
	store store.Store
	log   *slog.Logger
	audit *observability.AuditLogger
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

// New creates an ingestion engine over the given store.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InsertInsurer validates the payload, rejects duplicate names and
// persists the insurer. Returns the stored record with its generated
// identifier.
func (e *Engine) InsertInsurer(ctx context.Context, in model.InsurerInput) (*model.Insurer, error) {
	ctx, span := observability.StartIngestSpan(ctx, "insert_insurer")
	defer span.End()

	if violations := validate.Insurer(in); len(violations) > 0 {
		err := &errs.ValidationError{Resource: "insurer", Violations: violations}
		observability.RecordError(span, err)
		return nil, err
	}

	exists, err := e.store.InsurerExists(ctx, in.Name)
	if err != nil {
		storageErr := &errs.StorageError{Op: "check insurer name", Err: err}
		observability.RecordError(span, storageErr)
		return nil, storageErr
	}
	if exists {
		dupErr := &errs.DuplicateError{Resource: "insurer", Key: in.Name}
		observability.RecordError(span, dupErr)
		return nil, dupErr
	}

	insurer := &model.Insurer{
		Name:           in.Name,
		Description:    in.Description,
		Website:        in.Website,
		InsuranceTypes: in.InsuranceTypes,
		ContactEmail:   in.ContactEmail,
		ContactPhone:   in.ContactPhone,
	}
	if err := e.store.CreateInsurer(ctx, insurer); err != nil {
		storageErr := &errs.StorageError{Op: "create insurer", Err: err}
		observability.RecordError(span, storageErr)
		e.audit.LogInsert(observability.AuditEventInsurerCreate, "insurer", "", storageErr)
		return nil, storageErr
	}

	e.log.Info("insurer created", "id", insurer.ID, "name", insurer.Name)
	e.audit.LogInsert(observability.AuditEventInsurerCreate, "insurer", insurer.ID, nil)
	return insurer, nil
}

// InsertDocument validates the payload, verifies the owning insurer
// exists, rejects duplicate (insurer, title) pairs and persists the
// document. The reference check runs before the uniqueness check; a
// nonexistent insurer makes title uniqueness meaningless.
func (e *Engine) InsertDocument(ctx context.Context, in model.DocumentInput) (*model.Document, error) {
	ctx, span := observability.StartIngestSpan(ctx, "insert_document")
	defer span.End()

	if violations := validate.Document(in); len(violations) > 0 {
		err := &errs.ValidationError{Resource: "document", Violations: violations}
		observability.RecordError(span, err)
		return nil, err
	}

	insurer, err := e.store.GetInsurer(ctx, in.InsurerID)
	if err != nil {
		storageErr := &errs.StorageError{Op: "check insurer reference", Err: err}
		observability.RecordError(span, storageErr)
		return nil, storageErr
	}
	if insurer == nil {
		refErr := &errs.ReferenceError{Resource: "insurer", ID: in.InsurerID}
		observability.RecordError(span, refErr)
		return nil, refErr
	}

	exists, err := e.store.DocumentTitleExists(ctx, in.InsurerID, in.Title)
	if err != nil {
		storageErr := &errs.StorageError{Op: "check document title", Err: err}
		observability.RecordError(span, storageErr)
		return nil, storageErr
	}
	if exists {
		dupErr := &errs.DuplicateError{Resource: "document", Key: in.Title}
		observability.RecordError(span, dupErr)
		return nil, dupErr
	}

	language := in.Language
	if language == "" {
		language = model.DefaultLanguage
	}
	doc := &model.Document{
		InsurerID:     in.InsurerID,
		Title:         in.Title,
		InsuranceType: in.InsuranceType,
		DocumentType:  in.DocumentType,
		SourceURL:     in.SourceURL,
		FilePath:      in.FilePath,
		Language:      language,
		Metadata:      in.Metadata,
	}
	if err := e.store.CreateDocument(ctx, doc); err != nil {
		storageErr := &errs.StorageError{Op: "create document", Err: err}
		observability.RecordError(span, storageErr)
		e.audit.LogInsert(observability.AuditEventDocCreate, "document", "", storageErr)
		return nil, storageErr
	}

	e.log.Info("document created", "id", doc.ID, "insurer_id", doc.InsurerID, "title", doc.Title)
	e.audit.LogInsert(observability.AuditEventDocCreate, "document", doc.ID, nil)
	return doc, nil
}

// InsertChunk validates the payload (including embedding
// dimensionality), verifies the owning document and insurer exist and
// persists the chunk. Chunks have no duplicate detection; ordering
// within a document is the caller's responsibility via chunk_index.
func (e *Engine) InsertChunk(ctx context.Context, in model.ChunkInput) (*model.DocumentChunk, error) {
	ctx, span := observability.StartIngestSpan(ctx, "insert_chunk")
	defer span.End()

	if violations := validate.Chunk(in); len(violations) > 0 {
		err := &errs.ValidationError{Resource: "document_chunk", Violations: violations}
		observability.RecordError(span, err)
		return nil, err
	}

	doc, err := e.store.GetDocument(ctx, in.DocumentID)
	if err != nil {
		storageErr := &errs.StorageError{Op: "check document reference", Err: err}
		observability.RecordError(span, storageErr)
		return nil, storageErr
	}
	if doc == nil {
		refErr := &errs.ReferenceError{Resource: "document", ID: in.DocumentID}
		observability.RecordError(span, refErr)
		return nil, refErr
	}

	insurer, err := e.store.GetInsurer(ctx, in.InsurerID)
	if err != nil {
		storageErr := &errs.StorageError{Op: "check insurer reference", Err: err}
		observability.RecordError(span, storageErr)
		return nil, storageErr
	}
	if insurer == nil {
		refErr := &errs.ReferenceError{Resource: "insurer", ID: in.InsurerID}
		observability.RecordError(span, refErr)
		return nil, refErr
	}

	chunk := chunkRecord(in)
	if err := e.store.CreateChunk(ctx, &chunk); err != nil {
		storageErr := &errs.StorageError{Op: "create chunk", Err: err}
		observability.RecordError(span, storageErr)
		e.audit.LogInsert(observability.AuditEventChunkCreate, "document_chunk", "", storageErr)
		return nil, storageErr
	}

	e.log.Debug("chunk created", "id", chunk.ID, "document_id", chunk.DocumentID, "index", chunk.ChunkIndex)
	e.audit.LogInsert(observability.AuditEventChunkCreate, "document_chunk", chunk.ID, nil)
	return &chunk, nil
}

func chunkRecord(in model.ChunkInput) model.DocumentChunk {
	return model.DocumentChunk{
		DocumentID: in.DocumentID,
		InsurerID:  in.InsurerID,
		ChunkText:  in.ChunkText,
		ChunkIndex: in.ChunkIndex,
		Embedding:  pgvector.NewVector(in.Embedding),
		TokenCount: in.TokenCount,
		Metadata:   in.Metadata,
	}
}
