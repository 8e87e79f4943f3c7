// Package postgres implements the store contract on PostgreSQL with
// the pgvector extension.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ekinsenler/insurag/internal/model"
	"github.com/ekinsenler/insurag/internal/store"
)

// Store is a pgvector-backed implementation of store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New opens a connection to the database. The connection is reused
// across calls and released by Close.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the vector extension, the three tables with their
// uniqueness indexes, an ivfflat index on the embedding column, and
// the insurance_type index used by the categorical filter.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	if err := db.AutoMigrate(&model.Insurer{}, &model.Document{}, &model.DocumentChunk{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding " +
			"ON document_chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)",
	).Error; err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	return nil
}

func (s *Store) InsurerExists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Insurer{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) GetInsurer(ctx context.Context, id string) (*model.Insurer, error) {
	var insurer model.Insurer
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&insurer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &insurer, nil
}

func (s *Store) GetInsurerByName(ctx context.Context, name string) (*model.Insurer, error) {
	var insurer model.Insurer
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&insurer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &insurer, nil
}

func (s *Store) ListInsurers(ctx context.Context) ([]model.Insurer, error) {
	var insurers []model.Insurer
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&insurers).Error
	return insurers, err
}

func (s *Store) DocumentTitleExists(ctx context.Context, insurerID, title string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Document{}).
		Where("insurer_id = ? AND title = ?", insurerID, title).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) ListDocumentsByInsurer(ctx context.Context, insurerID string) ([]model.Document, error) {
	var docs []model.Document
	err := s.db.WithContext(ctx).
		Where("insurer_id = ?", insurerID).
		Order("created_at ASC").
		Find(&docs).Error
	return docs, err
}

func (s *Store) CountChunks(ctx context.Context, documentID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Count(&count).Error
	return count, err
}

func (s *Store) CreateInsurer(ctx context.Context, insurer *model.Insurer) error {
	return s.db.WithContext(ctx).Create(insurer).Error
}

func (s *Store) CreateDocument(ctx context.Context, doc *model.Document) error {
	return s.db.WithContext(ctx).Create(doc).Error
}

func (s *Store) CreateChunk(ctx context.Context, chunk *model.DocumentChunk) error {
	return s.db.WithContext(ctx).Create(chunk).Error
}

// CreateChunkBatch inserts all chunks in a single multi-row INSERT, so
// a constraint violation on any row rolls back the whole batch.
func (s *Store) CreateChunkBatch(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&chunks).Error
}

// SearchChunks ranks chunks by cosine similarity using the pgvector
// <=> operator. The categorical filter joins on the owning document
// and narrows the candidate set before ranking. Equal similarities
// order by the insertion sequence; created_at is not enough because a
// multi-row insert stamps every row with the same timestamp.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, filter store.SearchFilter) ([]model.ScoredChunk, error) {
	vec := pgvector.NewVector(embedding)

	q := s.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.*, 1 - (document_chunks.embedding <=> ?) AS similarity", vec).
		Joins("JOIN documents ON documents.id = document_chunks.document_id")

	if len(filter.InsuranceTypes) > 0 {
		q = q.Where("lower(documents.insurance_type) IN ?", filter.InsuranceTypes)
	}
	if filter.Threshold != nil {
		q = q.Where("1 - (document_chunks.embedding <=> ?) >= ?", vec, *filter.Threshold)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var results []model.ScoredChunk
	err := q.Order("similarity DESC, document_chunks.seq ASC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
