// Package model defines the persisted entities of the insurance corpus
// and the typed insert payloads accepted by the ingestion engine.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EmbeddingDim is the fixed dimensionality of chunk embeddings. Every
// stored embedding and every query embedding must have exactly this
// many components.
const EmbeddingDim = 768

// DefaultLanguage is assigned to documents created without an explicit
// language code.
const DefaultLanguage = "en"

// Insurer is the root of the corpus hierarchy. It exclusively owns its
// documents and, transitively, their chunks.
type Insurer struct {
	ID             string                      `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string                      `gorm:"type:text;not null;uniqueIndex:idx_insurers_name" json:"name"`
	Description    string                      `gorm:"type:text" json:"description,omitempty"`
	Website        string                      `gorm:"type:text" json:"website,omitempty"`
	InsuranceTypes datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"insurance_types,omitempty"`
	ContactEmail   string                      `gorm:"type:text" json:"contact_email,omitempty"`
	ContactPhone   string                      `gorm:"type:text" json:"contact_phone,omitempty"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime" json:"created_at"`
}

func (Insurer) TableName() string { return "insurers" }

// BeforeCreate assigns a generated identifier when none is set.
func (i *Insurer) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// Document is a source document owned by exactly one insurer. The
// (insurer_id, title) pair is unique.
type Document struct {
	ID            string            `gorm:"type:uuid;primaryKey" json:"id"`
	InsurerID     string            `gorm:"type:uuid;not null;index;uniqueIndex:idx_documents_insurer_title" json:"insurer_id"`
	Title         string            `gorm:"type:text;not null;uniqueIndex:idx_documents_insurer_title" json:"title"`
	InsuranceType string            `gorm:"type:text;index:idx_documents_insurance_type" json:"insurance_type,omitempty"`
	DocumentType  string            `gorm:"type:text" json:"document_type,omitempty"`
	SourceURL     string            `gorm:"type:text" json:"source_url,omitempty"`
	FilePath      string            `gorm:"type:text" json:"file_path,omitempty"`
	Language      string            `gorm:"type:text;not null" json:"language"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`

	Insurer *Insurer `gorm:"foreignKey:InsurerID;constraint:OnDelete:CASCADE" json:"insurer,omitempty"`
}

func (Document) TableName() string { return "documents" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// DocumentChunk is a contiguous slice of a document's text stored with
// its embedding vector. InsurerID is denormalized from the owning
// document so the retrieval path can filter without an extra join hop.
type DocumentChunk struct {
	ID         string            `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID string            `gorm:"type:uuid;not null;index" json:"document_id"`
	InsurerID  string            `gorm:"type:uuid;not null;index" json:"insurer_id"`
	ChunkText  string            `gorm:"type:text;not null" json:"chunk_text"`
	ChunkIndex int               `gorm:"not null" json:"chunk_index"`
	Embedding  pgvector.Vector   `gorm:"type:vector(768);not null" json:"-"`
	TokenCount *int              `gorm:"" json:"token_count,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	// Seq is a monotonic insertion sequence. Equal-similarity search
	// results order by it; timestamps alone cannot break ties because
	// a multi-row insert shares one created_at.
	Seq       int64     `gorm:"autoIncrement;uniqueIndex:idx_document_chunks_seq" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Document *Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"document,omitempty"`
}

func (DocumentChunk) TableName() string { return "document_chunks" }

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ScoredChunk is a retrieval result: a chunk together with its
// similarity to the query embedding.
type ScoredChunk struct {
	DocumentChunk
	Similarity float32 `gorm:"column:similarity" json:"similarity"`
}

// InsurerInput is the payload for creating an insurer.
type InsurerInput struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Website        string   `json:"website,omitempty"`
	InsuranceTypes []string `json:"insurance_types,omitempty"`
	ContactEmail   string   `json:"contact_email,omitempty"`
	ContactPhone   string   `json:"contact_phone,omitempty"`
}

// DocumentInput is the payload for creating a document.
type DocumentInput struct {
	InsurerID     string         `json:"insurer_id"`
	Title         string         `json:"title"`
	InsuranceType string         `json:"insurance_type,omitempty"`
	DocumentType  string         `json:"document_type,omitempty"`
	SourceURL     string         `json:"source_url,omitempty"`
	FilePath      string         `json:"file_path,omitempty"`
	Language      string         `json:"language,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ChunkInput is the payload for creating a document chunk. TokenCount
// is optional; when present it must be positive.
type ChunkInput struct {
	DocumentID string         `json:"document_id"`
	InsurerID  string         `json:"insurer_id"`
	ChunkText  string         `json:"chunk_text"`
	ChunkIndex int            `json:"chunk_index"`
	Embedding  []float32      `json:"embedding"`
	TokenCount *int           `json:"token_count,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
