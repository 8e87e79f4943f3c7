// Package memory implements the store contract in process memory with
// brute-force cosine similarity. It backs the engine tests and the
// CLI's memory mode; constraints are enforced the same way the
// database schema enforces them.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ekinsenler/insurag/internal/model"
	"github.com/ekinsenler/insurag/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu        sync.RWMutex
	insurers  []model.Insurer
	documents []model.Document
	chunks    []model.DocumentChunk
	nextSeq   int64
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store { return &Store{} }

func (s *Store) InsurerExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findInsurerByName(name) != nil, nil
}

func (s *Store) GetInsurer(ctx context.Context, id string) (*model.Insurer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.insurers {
		if s.insurers[i].ID == id {
			insurer := s.insurers[i]
			return &insurer, nil
		}
	}
	return nil, nil
}

func (s *Store) GetInsurerByName(ctx context.Context, name string) (*model.Insurer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if insurer := s.findInsurerByName(name); insurer != nil {
		copied := *insurer
		return &copied, nil
	}
	return nil, nil
}

func (s *Store) ListInsurers(ctx context.Context) ([]model.Insurer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Insurer, len(s.insurers))
	copy(out, s.insurers)
	return out, nil
}

func (s *Store) DocumentTitleExists(ctx context.Context, insurerID, title string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.documents {
		if s.documents[i].InsurerID == insurerID && s.documents[i].Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.documents {
		if s.documents[i].ID == id {
			doc := s.documents[i]
			return &doc, nil
		}
	}
	return nil, nil
}

func (s *Store) ListDocumentsByInsurer(ctx context.Context, insurerID string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Document
	for i := range s.documents {
		if s.documents[i].InsurerID == insurerID {
			out = append(out, s.documents[i])
		}
	}
	return out, nil
}

func (s *Store) CountChunks(ctx context.Context, documentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for i := range s.chunks {
		if s.chunks[i].DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateInsurer(ctx context.Context, insurer *model.Insurer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findInsurerByName(insurer.Name) != nil {
		return fmt.Errorf("unique constraint violation: insurers.name %q", insurer.Name)
	}
	if insurer.ID == "" {
		insurer.ID = uuid.NewString()
	}
	s.insurers = append(s.insurers, *insurer)
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.insurerIDExists(doc.InsurerID) {
		return fmt.Errorf("foreign key violation: documents.insurer_id %q", doc.InsurerID)
	}
	for i := range s.documents {
		if s.documents[i].InsurerID == doc.InsurerID && s.documents[i].Title == doc.Title {
			return fmt.Errorf("unique constraint violation: documents (insurer_id, title) (%q, %q)", doc.InsurerID, doc.Title)
		}
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	s.documents = append(s.documents, *doc)
	return nil
}

func (s *Store) CreateChunk(ctx context.Context, chunk *model.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendChunks([]model.DocumentChunk{*chunk}, chunk)
}

// CreateChunkBatch mirrors the atomicity of a multi-row INSERT: if any
// chunk violates a constraint, none of the batch is stored.
func (s *Store) CreateChunkBatch(ctx context.Context, chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendChunks(chunks, nil)
}

func (s *Store) appendChunks(chunks []model.DocumentChunk, original *model.DocumentChunk) error {
	for i := range chunks {
		if s.findDocument(chunks[i].DocumentID) == nil {
			return fmt.Errorf("foreign key violation: document_chunks.document_id %q", chunks[i].DocumentID)
		}
		if !s.insurerIDExists(chunks[i].InsurerID) {
			return fmt.Errorf("foreign key violation: document_chunks.insurer_id %q", chunks[i].InsurerID)
		}
	}
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		s.nextSeq++
		chunks[i].Seq = s.nextSeq
	}
	if original != nil {
		original.ID = chunks[0].ID
		original.Seq = chunks[0].Seq
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *Store) SearchChunks(ctx context.Context, embedding []float32, filter store.SearchFilter) ([]model.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	typeFilter := make(map[string]bool, len(filter.InsuranceTypes))
	for _, t := range filter.InsuranceTypes {
		typeFilter[t] = true
	}

	results := make([]model.ScoredChunk, 0)
	for i := range s.chunks {
		chunk := s.chunks[i]
		if len(typeFilter) > 0 {
			doc := s.findDocument(chunk.DocumentID)
			if doc == nil || !typeFilter[strings.ToLower(doc.InsuranceType)] {
				continue
			}
		}
		sim := cosineSimilarity(embedding, chunk.Embedding.Slice())
		if filter.Threshold != nil && sim < *filter.Threshold {
			continue
		}
		results = append(results, model.ScoredChunk{DocumentChunk: chunk, Similarity: sim})
	}

	// Equal similarities order by the insertion sequence.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Seq < results[j].Seq
	})

	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) findInsurerByName(name string) *model.Insurer {
	for i := range s.insurers {
		if s.insurers[i].Name == name {
			return &s.insurers[i]
		}
	}
	return nil
}

func (s *Store) insurerIDExists(id string) bool {
	for i := range s.insurers {
		if s.insurers[i].ID == id {
			return true
		}
	}
	return false
}

func (s *Store) findDocument(id string) *model.Document {
	for i := range s.documents {
		if s.documents[i].ID == id {
			return &s.documents[i]
		}
	}
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
