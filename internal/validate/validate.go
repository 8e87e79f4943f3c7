// Package validate holds the pure record validators. They inspect a
// candidate payload and report field-level violations; they never touch
// the store.
package validate

import (
	"fmt"
	"strings"

	"github.com/ekinsenler/insurag/internal/errs"
	"github.com/ekinsenler/insurag/internal/model"
)

// Insurer checks an insurer payload. A nil result means valid.
func Insurer(in model.InsurerInput) []errs.FieldError {
	var violations []errs.FieldError
	if strings.TrimSpace(in.Name) == "" {
		violations = append(violations, errs.FieldError{Field: "name", Reason: "is required"})
	}
	return violations
}

// Document checks a document payload.
func Document(in model.DocumentInput) []errs.FieldError {
	var violations []errs.FieldError
	if strings.TrimSpace(in.InsurerID) == "" {
		violations = append(violations, errs.FieldError{Field: "insurer_id", Reason: "is required"})
	}
	if strings.TrimSpace(in.Title) == "" {
		violations = append(violations, errs.FieldError{Field: "title", Reason: "is required"})
	}
	return violations
}

// Chunk checks a chunk payload, including the fixed embedding
// dimensionality.
func Chunk(in model.ChunkInput) []errs.FieldError {
	var violations []errs.FieldError
	if strings.TrimSpace(in.DocumentID) == "" {
		violations = append(violations, errs.FieldError{Field: "document_id", Reason: "is required"})
	}
	if strings.TrimSpace(in.InsurerID) == "" {
		violations = append(violations, errs.FieldError{Field: "insurer_id", Reason: "is required"})
	}
	if strings.TrimSpace(in.ChunkText) == "" {
		violations = append(violations, errs.FieldError{Field: "chunk_text", Reason: "is required"})
	}
	if in.ChunkIndex < 0 {
		violations = append(violations, errs.FieldError{Field: "chunk_index", Reason: "must not be negative"})
	}
	if in.Embedding == nil {
		violations = append(violations, errs.FieldError{Field: "embedding", Reason: "is required"})
	} else if len(in.Embedding) != model.EmbeddingDim {
		violations = append(violations, errs.FieldError{
			Field:  "embedding",
			Reason: fmt.Sprintf("must have exactly %d components, got %d", model.EmbeddingDim, len(in.Embedding)),
		})
	}
	if in.TokenCount != nil && *in.TokenCount <= 0 {
		violations = append(violations, errs.FieldError{Field: "token_count", Reason: "must be positive"})
	}
	return violations
}

// QueryEmbedding checks a retrieval query vector.
func QueryEmbedding(embedding []float32) []errs.FieldError {
	if len(embedding) != model.EmbeddingDim {
		return []errs.FieldError{{
			Field:  "embedding",
			Reason: fmt.Sprintf("must have exactly %d components, got %d", model.EmbeddingDim, len(embedding)),
		}}
	}
	return nil
}
