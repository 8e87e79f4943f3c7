package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ekinsenler/insurag/internal/errs"
	"github.com/ekinsenler/insurag/internal/model"
	"github.com/ekinsenler/insurag/internal/observability"
	"github.com/ekinsenler/insurag/internal/validate"
)

// DefaultBatchSize is the batch size used when callers pass zero to
// BulkInsertChunks helpers that accept a default.
const DefaultBatchSize = 100

// BulkResult summarizes a bulk chunk insertion. Total == Inserted +
// Failed always holds.
type BulkResult struct {
	Total    int         `json:"total"`
	Inserted int         `json:"inserted"`
	Failed   int         `json:"failed"`
	Errors   []BulkError `json:"errors"`
}

// BulkError records one failure cause. Validation failures cover a
// single input position (First == Last); a batch write failure covers
// the contiguous runs of positions that were actually in the failed
// batch, so no position appears in more than one entry.
type BulkError struct {
	First  int    `json:"first"`
	Last   int    `json:"last"`
	Reason string `json:"reason"`
}

// BulkInsertChunks partitions the input into consecutive batches of at
// most batchSize chunks and writes each batch as a single multi-row
// insert. Invalid chunks are recorded as failures without being sent
// to the store; a failed batch write fails every valid chunk of that
// batch and processing continues with the next batch. The only
// structurally invalid call is a non-positive batchSize.
func (e *Engine) BulkInsertChunks(ctx context.Context, inputs []model.ChunkInput, batchSize int) (*BulkResult, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	ctx, span := observability.StartIngestSpan(ctx, "bulk_insert_chunks")
	defer span.End()

	started := time.Now()
	result := &BulkResult{
		Total:  len(inputs),
		Errors: []BulkError{},
	}

	for start := 0; start < len(inputs); start += batchSize {
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}

		batch := make([]model.DocumentChunk, 0, end-start)
		positions := make([]int, 0, end-start)
		for pos := start; pos < end; pos++ {
			if violations := validate.Chunk(inputs[pos]); len(violations) > 0 {
				result.Failed++
				result.Errors = append(result.Errors, BulkError{
					First:  pos,
					Last:   pos,
					Reason: formatViolations(violations),
				})
				continue
			}
			batch = append(batch, chunkRecord(inputs[pos]))
			positions = append(positions, pos)
		}
		if len(batch) == 0 {
			continue
		}

		if err := e.store.CreateChunkBatch(ctx, batch); err != nil {
			result.Failed += len(batch)
			for _, run := range positionRuns(positions) {
				result.Errors = append(result.Errors, BulkError{
					First:  run[0],
					Last:   run[1],
					Reason: err.Error(),
				})
			}
			e.log.Warn("chunk batch failed",
				"first", positions[0], "last", positions[len(positions)-1],
				"size", len(batch), "error", err)
			continue
		}
		result.Inserted += len(batch)
	}

	observability.RecordBulkOutcome(span, result.Total, result.Inserted, result.Failed)
	e.audit.LogBulkInsert(result.Total, result.Inserted, result.Failed, time.Since(started))
	e.log.Info("bulk chunk insert finished",
		"total", result.Total, "inserted", result.Inserted, "failed", result.Failed)
	return result, nil
}

// positionRuns collapses ascending input positions into contiguous
// [first, last] runs. Validation failures punch holes in a batch, so
// its surviving positions are not always one range.
func positionRuns(positions []int) [][2]int {
	var runs [][2]int
	for _, pos := range positions {
		if n := len(runs); n > 0 && runs[n-1][1] == pos-1 {
			runs[n-1][1] = pos
			continue
		}
		runs = append(runs, [2]int{pos, pos})
	}
	return runs
}

func formatViolations(violations []errs.FieldError) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return "validation: " + strings.Join(parts, "; ")
}
