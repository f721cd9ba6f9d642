package core

import (
	"context"
	"fmt"
	"time"
)

// UpsertOutcome reports what ApplyRecord did.
type UpsertOutcome int

const (
	Inserted UpsertOutcome = iota
	Updated
)

func (o UpsertOutcome) String() string {
	if o == Updated {
		return "updated"
	}
	return "inserted"
}

// UpsertEngine merges records into a session by natural key.
// It never commits; the caller owns the transaction boundary.
type UpsertEngine struct {
	now func() time.Time
}

// NewUpsertEngine returns an engine stamping times with now (UTC wall clock if nil).
func NewUpsertEngine(now func() time.Time) *UpsertEngine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &UpsertEngine{now: now}
}

// ApplyRecord updates the product with rec's natural key, or stages a new one.
//
// On update only part_price, short_desc and updatedat change; id, createdat and
// the natural key are kept. A record's id, createdat and updatedat are ignored.
func (e *UpsertEngine) ApplyRecord(ctx context.Context, sess Session, rec NormalizedRecord) (*Product, UpsertOutcome, error) {
	existing, found, err := sess.FindByNaturalKey(ctx, rec.Key())
	if err != nil {
		return nil, 0, fmt.Errorf("lookup %s: %w", rec.Key(), err)
	}

	now := e.now()

	if found {
		existing.PartPrice = rec.PartPrice
		existing.ShortDesc = copyString(rec.ShortDesc)
		existing.UpdatedAt = now
		return existing, Updated, nil
	}

	p := &Product{
		PartNumber: rec.PartNumber,
		BranchID:   rec.BranchID,
		PartPrice:  rec.PartPrice,
		ShortDesc:  copyString(rec.ShortDesc),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := sess.Add(ctx, p); err != nil {
		return nil, 0, fmt.Errorf("stage %s: %w", rec.Key(), err)
	}
	return p, Inserted, nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
