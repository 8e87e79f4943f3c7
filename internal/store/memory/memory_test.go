package memory

import (
	"context"
	"math"
	"testing"

	"github.com/pgvector/pgvector-go"

	"github.com/ekinsenler/insurag/internal/model"
	"github.com/ekinsenler/insurag/internal/store"
)

// embedding builds a 768-dim vector whose direction is controlled by
// the first two components; the rest are zero.
func embedding(x, y float32) []float32 {
	emb := make([]float32, model.EmbeddingDim)
	emb[0] = x
	emb[1] = y
	return emb
}

func seedInsurer(t *testing.T, s *Store, name string) *model.Insurer {
	t.Helper()
	insurer := &model.Insurer{Name: name}
	if err := s.CreateInsurer(context.Background(), insurer); err != nil {
		t.Fatalf("seed insurer: %v", err)
	}
	return insurer
}

func seedDocument(t *testing.T, s *Store, insurerID, title, insuranceType string) *model.Document {
	t.Helper()
	doc := &model.Document{InsurerID: insurerID, Title: title, InsuranceType: insuranceType, Language: model.DefaultLanguage}
	if err := s.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

func seedChunk(t *testing.T, s *Store, docID, insurerID, text string, index int, emb []float32) {
	t.Helper()
	chunk := &model.DocumentChunk{
		DocumentID: docID,
		InsurerID:  insurerID,
		ChunkText:  text,
		ChunkIndex: index,
		Embedding:  pgvector.NewVector(emb),
	}
	if err := s.CreateChunk(context.Background(), chunk); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
}

func TestCreateInsurer_AssignsID(t *testing.T) {
	s := New()
	insurer := seedInsurer(t, s, "Allianz")
	if insurer.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.GetInsurerByName(context.Background(), "Allianz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ID != insurer.ID {
		t.Fatalf("re-read mismatch: %+v", got)
	}
}

func TestCreateInsurer_UniqueName(t *testing.T) {
	s := New()
	seedInsurer(t, s, "Allianz")
	err := s.CreateInsurer(context.Background(), &model.Insurer{Name: "Allianz"})
	if err == nil {
		t.Fatal("expected unique constraint error")
	}

	insurers, err := s.ListInsurers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(insurers) != 1 {
		t.Fatalf("insurer count changed: got %d, want 1", len(insurers))
	}
}

func TestCreateDocument_Constraints(t *testing.T) {
	s := New()
	insurer := seedInsurer(t, s, "AXA")
	seedDocument(t, s, insurer.ID, "Terms", "health")

	if err := s.CreateDocument(context.Background(), &model.Document{InsurerID: "missing", Title: "X"}); err == nil {
		t.Error("expected foreign key error for missing insurer")
	}
	if err := s.CreateDocument(context.Background(), &model.Document{InsurerID: insurer.ID, Title: "Terms"}); err == nil {
		t.Error("expected unique constraint error for duplicate title")
	}
	// Same title under a different insurer is fine.
	other := seedInsurer(t, s, "Mapfre")
	if err := s.CreateDocument(context.Background(), &model.Document{InsurerID: other.ID, Title: "Terms"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCreateChunkBatch_Atomic(t *testing.T) {
	s := New()
	insurer := seedInsurer(t, s, "AXA")
	doc := seedDocument(t, s, insurer.ID, "Terms", "health")

	batch := []model.DocumentChunk{
		{DocumentID: doc.ID, InsurerID: insurer.ID, ChunkText: "a", ChunkIndex: 0, Embedding: pgvector.NewVector(embedding(1, 0))},
		{DocumentID: "missing", InsurerID: insurer.ID, ChunkText: "b", ChunkIndex: 1, Embedding: pgvector.NewVector(embedding(0, 1))},
	}
	if err := s.CreateChunkBatch(context.Background(), batch); err == nil {
		t.Fatal("expected foreign key error")
	}

	count, err := s.CountChunks(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("batch was not atomic: %d chunks stored", count)
	}
}

func TestSearchChunks_RankingAndThreshold(t *testing.T) {
	s := New()
	insurer := seedInsurer(t, s, "AXA")
	doc := seedDocument(t, s, insurer.ID, "Terms", "health")

	// Similarities against query [1,0]: 1.0, ~0.707, 0.0
	seedChunk(t, s, doc.ID, insurer.ID, "far", 0, embedding(0, 1))
	seedChunk(t, s, doc.ID, insurer.ID, "exact", 1, embedding(1, 0))
	seedChunk(t, s, doc.ID, insurer.ID, "diagonal", 2, embedding(1, 1))

	results, err := s.SearchChunks(context.Background(), embedding(1, 0), store.SearchFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantOrder := []string{"exact", "diagonal", "far"}
	for i, want := range wantOrder {
		if results[i].ChunkText != want {
			t.Errorf("position %d: got %q, want %q", i, results[i].ChunkText, want)
		}
	}
	if math.Abs(float64(results[0].Similarity)-1.0) > 1e-5 {
		t.Errorf("exact match similarity: got %f, want 1.0", results[0].Similarity)
	}

	threshold := float32(0.9)
	results, err = s.SearchChunks(context.Background(), embedding(1, 0), store.SearchFilter{Threshold: &threshold})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ChunkText != "exact" {
		t.Fatalf("threshold filter: got %+v", results)
	}
}

func TestSearchChunks_TypeFilterAndLimit(t *testing.T) {
	s := New()
	insurer := seedInsurer(t, s, "AXA")
	health := seedDocument(t, s, insurer.ID, "Health Terms", "Health")
	auto := seedDocument(t, s, insurer.ID, "Auto Terms", "auto")

	seedChunk(t, s, health.ID, insurer.ID, "health chunk", 0, embedding(1, 0))
	seedChunk(t, s, auto.ID, insurer.ID, "auto chunk", 0, embedding(1, 0.1))

	// Filter values arrive normalized; the stored type may be any case.
	results, err := s.SearchChunks(context.Background(), embedding(1, 0), store.SearchFilter{InsuranceTypes: []string{"health"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ChunkText != "health chunk" {
		t.Fatalf("type filter: got %+v", results)
	}

	results, err = s.SearchChunks(context.Background(), embedding(1, 0), store.SearchFilter{Limit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ChunkText != "health chunk" {
		t.Fatalf("limit: got %+v", results)
	}
}

func TestSearchChunks_StableTies(t *testing.T) {
	s := New()
	insurer := seedInsurer(t, s, "AXA")
	doc := seedDocument(t, s, insurer.ID, "Terms", "health")

	// Identical embeddings tie on similarity; insertion order decides.
	for i := 0; i < 5; i++ {
		seedChunk(t, s, doc.ID, insurer.ID, "tie", i, embedding(1, 0))
	}

	results, err := s.SearchChunks(context.Background(), embedding(1, 0), store.SearchFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.ChunkIndex != i {
			t.Fatalf("tie order not stable: position %d holds chunk_index %d", i, r.ChunkIndex)
		}
	}
}

func TestSearchChunks_BatchTiesFollowInsertionSequence(t *testing.T) {
	s := New()
	insurer := seedInsurer(t, s, "AXA")
	doc := seedDocument(t, s, insurer.ID, "Terms", "health")

	// Rows written in one batch share a creation timestamp, so the
	// sequence is the only thing that can order equal similarities.
	batch := make([]model.DocumentChunk, 4)
	for i := range batch {
		batch[i] = model.DocumentChunk{
			DocumentID: doc.ID,
			InsurerID:  insurer.ID,
			ChunkText:  "tie",
			ChunkIndex: i,
			Embedding:  pgvector.NewVector(embedding(1, 0)),
		}
	}
	if err := s.CreateChunkBatch(context.Background(), batch); err != nil {
		t.Fatalf("batch insert: %v", err)
	}

	results, err := s.SearchChunks(context.Background(), embedding(1, 0), store.SearchFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, r := range results {
		if r.ChunkIndex != i {
			t.Fatalf("position %d holds chunk_index %d", i, r.ChunkIndex)
		}
		if i > 0 && results[i-1].Seq >= r.Seq {
			t.Fatalf("sequence not ascending at position %d: %d then %d", i, results[i-1].Seq, r.Seq)
		}
	}
}

func TestLookups_AbsentIsNilNotError(t *testing.T) {
	s := New()
	ctx := context.Background()

	if got, err := s.GetInsurer(ctx, "missing"); err != nil || got != nil {
		t.Errorf("GetInsurer: got (%v, %v), want (nil, nil)", got, err)
	}
	if got, err := s.GetInsurerByName(ctx, "missing"); err != nil || got != nil {
		t.Errorf("GetInsurerByName: got (%v, %v), want (nil, nil)", got, err)
	}
	if got, err := s.GetDocument(ctx, "missing"); err != nil || got != nil {
		t.Errorf("GetDocument: got (%v, %v), want (nil, nil)", got, err)
	}
	if count, err := s.CountChunks(ctx, "missing"); err != nil || count != 0 {
		t.Errorf("CountChunks: got (%d, %v), want (0, nil)", count, err)
	}
}
