package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/partsync/internal/logging"
)

// IngestSuccessMessage is reported for every committed document.
const IngestSuccessMessage = "CSV processing completed successfully"

// Ingester runs a whole document through parse, validate and upsert inside one
// session and commits once. Either every row is applied or none is.
type Ingester struct {
	engine *UpsertEngine
}

// NewIngester creates an Ingester. A nil engine uses wall-clock timestamps.
func NewIngester(engine *UpsertEngine) *Ingester {
	if engine == nil {
		engine = NewUpsertEngine(nil)
	}
	return &Ingester{engine: engine}
}

// Ingest applies content to sess and commits. On any failure the session is
// rolled back and an *IngestError is returned. The caller still owns sess and
// must Close it.
func (in *Ingester) Ingest(ctx context.Context, sess Session, content string) (*IngestResult, error) {
	start := time.Now()
	logger := logging.FromContext(ctx)
	result := &IngestResult{}

	var (
		touched []*Product
		seen    = make(map[*Product]bool)
	)

	reader := NewRowReader(content)
	for {
		raw, line, ok := reader.Next()
		if !ok {
			break
		}

		rec, err := ValidateRow(raw, line)
		if err != nil {
			logger.Warn("row validation failed", "line", line, "error", err)
			return nil, in.abort(ctx, sess, line, err)
		}

		p, outcome, err := in.engine.ApplyRecord(ctx, sess, rec)
		if err != nil {
			logger.Error("row upsert failed", "line", line, "key", rec.Key().String(), "error", err)
			return nil, in.abort(ctx, sess, line, err)
		}

		result.Rows++
		if outcome == Inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
		if !seen[p] {
			seen[p] = true
			touched = append(touched, p)
		}
	}

	if err := sess.Commit(ctx); err != nil {
		logger.Error("commit failed", "rows", result.Rows, "error", err)
		return nil, in.abort(ctx, sess, 0, err)
	}

	result.Products = make([]Product, len(touched))
	for i, p := range touched {
		result.Products[i] = *p
	}
	result.Duration = time.Since(start)
	result.Message = IngestSuccessMessage
	return result, nil
}

func (in *Ingester) abort(ctx context.Context, sess Session, line int, cause error) error {
	if err := sess.Rollback(ctx); err != nil {
		logging.FromContext(ctx).Error("rollback failed", "error", err)
	}
	return &IngestError{Line: line, Err: cause}
}

// Summary renders a one-line outcome for job status records.
func (r *IngestResult) Summary() string {
	return fmt.Sprintf("%s: %d rows (%d inserted, %d updated)", r.Message, r.Rows, r.Inserted, r.Updated)
}
