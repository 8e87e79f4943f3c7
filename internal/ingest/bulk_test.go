package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/ekinsenler/insurag/internal/model"
	"github.com/ekinsenler/insurag/internal/store/memory"
)

var errStoreDown = errors.New("store unreachable")

// failingStore wraps the memory store and injects write failures.
type failingStore struct {
	*memory.Store
	failCreates bool
	failBatches map[int]bool // fail the Nth CreateChunkBatch call (0-based)
	batchCalls  int
	batchesSeen [][]model.DocumentChunk
}

func (f *failingStore) CreateInsurer(ctx context.Context, insurer *model.Insurer) error {
	if f.failCreates {
		return errStoreDown
	}
	return f.Store.CreateInsurer(ctx, insurer)
}

func (f *failingStore) CreateChunkBatch(ctx context.Context, chunks []model.DocumentChunk) error {
	call := f.batchCalls
	f.batchCalls++
	f.batchesSeen = append(f.batchesSeen, chunks)
	if f.failBatches[call] {
		return errStoreDown
	}
	return f.Store.CreateChunkBatch(ctx, chunks)
}

func bulkInputs(doc *model.Document, n int) []model.ChunkInput {
	inputs := make([]model.ChunkInput, n)
	for i := range inputs {
		inputs[i] = chunkInput(doc, i)
	}
	return inputs
}

func TestBulkInsertChunks_AllValid(t *testing.T) {
	e, st := newTestEngine()
	_, doc := seedHierarchy(t, e)

	result, err := e.BulkInsertChunks(context.Background(), bulkInputs(doc, 5), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 5 || result.Inserted != 5 || result.Failed != 0 {
		t.Fatalf("got %+v, want total=5 inserted=5 failed=0", result)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}

	count, err := st.CountChunks(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Fatalf("got chunk count %d, want 5", count)
	}
}

func TestBulkInsertChunks_BadBatchSize(t *testing.T) {
	e, _ := newTestEngine()
	_, doc := seedHierarchy(t, e)

	for _, size := range []int{0, -1} {
		if _, err := e.BulkInsertChunks(context.Background(), bulkInputs(doc, 3), size); err == nil {
			t.Errorf("batchSize=%d: expected error", size)
		}
	}
}

func TestBulkInsertChunks_InvalidChunkDoesNotBlock(t *testing.T) {
	e, st := newTestEngine()
	_, doc := seedHierarchy(t, e)

	inputs := bulkInputs(doc, 6)
	inputs[2].ChunkText = "" // invalid, middle of first batch

	result, err := e.BulkInsertChunks(context.Background(), inputs, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 6 || result.Inserted != 5 || result.Failed != 1 {
		t.Fatalf("got %+v, want total=6 inserted=5 failed=1", result)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one error entry, got %v", result.Errors)
	}
	entry := result.Errors[0]
	if entry.First != 2 || entry.Last != 2 {
		t.Errorf("validation failure should cover position 2 only, got [%d, %d]", entry.First, entry.Last)
	}

	count, _ := st.CountChunks(context.Background(), doc.ID)
	if count != 5 {
		t.Fatalf("got chunk count %d, want 5", count)
	}
}

func TestBulkInsertChunks_FailedBatchContinues(t *testing.T) {
	st := &failingStore{Store: memory.New(), failBatches: map[int]bool{1: true}}
	e := New(st, WithLogger(quietLogger()))
	_, doc := seedHierarchy(t, e)

	result, err := e.BulkInsertChunks(context.Background(), bulkInputs(doc, 9), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Second batch (positions 3..5) failed; first and third succeeded.
	if result.Total != 9 || result.Inserted != 6 || result.Failed != 3 {
		t.Fatalf("got %+v, want total=9 inserted=6 failed=3", result)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one error entry, got %v", result.Errors)
	}
	entry := result.Errors[0]
	if entry.First != 3 || entry.Last != 5 {
		t.Errorf("batch failure should cover positions [3, 5], got [%d, %d]", entry.First, entry.Last)
	}
	if st.batchCalls != 3 {
		t.Errorf("got %d batch calls, want 3", st.batchCalls)
	}
}

func TestBulkInsertChunks_FailedBatchExcludesInvalidPositions(t *testing.T) {
	st := &failingStore{Store: memory.New(), failBatches: map[int]bool{0: true}}
	e := New(st, WithLogger(quietLogger()))
	_, doc := seedHierarchy(t, e)

	inputs := bulkInputs(doc, 5)
	inputs[2].ChunkText = "" // invalid, middle of the failing batch

	result, err := e.BulkInsertChunks(context.Background(), inputs, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 5 || result.Inserted != 0 || result.Failed != 5 {
		t.Fatalf("got %+v, want total=5 inserted=0 failed=5", result)
	}

	// One validation entry for position 2 and one batch entry per run
	// of valid positions around it; no position appears twice.
	want := []BulkError{
		{First: 2, Last: 2},
		{First: 0, Last: 1},
		{First: 3, Last: 4},
	}
	if len(result.Errors) != len(want) {
		t.Fatalf("got %d error entries, want %d: %v", len(result.Errors), len(want), result.Errors)
	}
	for i, w := range want {
		if result.Errors[i].First != w.First || result.Errors[i].Last != w.Last {
			t.Errorf("entry %d: got [%d, %d], want [%d, %d]",
				i, result.Errors[i].First, result.Errors[i].Last, w.First, w.Last)
		}
	}
	covered := make(map[int]int)
	for _, entry := range result.Errors {
		for pos := entry.First; pos <= entry.Last; pos++ {
			covered[pos]++
		}
	}
	for pos, n := range covered {
		if n != 1 {
			t.Errorf("position %d reported %d times", pos, n)
		}
	}
}

func TestBulkInsertChunks_DeterministicBatchBoundaries(t *testing.T) {
	st := &failingStore{Store: memory.New()}
	e := New(st, WithLogger(quietLogger()))
	_, doc := seedHierarchy(t, e)

	if _, err := e.BulkInsertChunks(context.Background(), bulkInputs(doc, 7), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantSizes := []int{3, 3, 1}
	if len(st.batchesSeen) != len(wantSizes) {
		t.Fatalf("got %d batches, want %d", len(st.batchesSeen), len(wantSizes))
	}
	for i, want := range wantSizes {
		if len(st.batchesSeen[i]) != want {
			t.Errorf("batch %d: got size %d, want %d", i, len(st.batchesSeen[i]), want)
		}
	}
	// Order within and across batches follows input order.
	pos := 0
	for _, batch := range st.batchesSeen {
		for _, chunk := range batch {
			if chunk.ChunkIndex != pos {
				t.Fatalf("expected chunk_index %d at position %d", pos, chunk.ChunkIndex)
			}
			pos++
		}
	}
}

func TestBulkInsertChunks_TotalInvariant(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		batchSize int
		invalid   []int
	}{
		{"empty input", 0, 100, nil},
		{"single batch", 4, 100, nil},
		{"exact multiple", 6, 3, nil},
		{"remainder batch", 7, 3, []int{0, 6}},
		{"all invalid", 3, 2, []int{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine()
			_, doc := seedHierarchy(t, e)

			inputs := bulkInputs(doc, tt.n)
			for _, pos := range tt.invalid {
				inputs[pos].Embedding = nil
			}

			result, err := e.BulkInsertChunks(context.Background(), inputs, tt.batchSize)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Total != tt.n {
				t.Errorf("got total %d, want %d", result.Total, tt.n)
			}
			if result.Inserted+result.Failed != result.Total {
				t.Errorf("inserted(%d) + failed(%d) != total(%d)", result.Inserted, result.Failed, result.Total)
			}
			if result.Failed != len(tt.invalid) {
				t.Errorf("got failed %d, want %d", result.Failed, len(tt.invalid))
			}
		})
	}
}
