// Package core provides the business logic for product ingestion and queries.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"
	"time"
)

// Product is the persisted catalogue entity.
type Product struct {
	ID         int64     `json:"id"`
	PartNumber string    `json:"part_number"`
	BranchID   string    `json:"branch_id"`
	PartPrice  float64   `json:"part_price"`
	ShortDesc  *string   `json:"short_desc"`
	CreatedAt  time.Time `json:"createdat"`
	UpdatedAt  time.Time `json:"updatedat"`
}

// Key returns the natural key of the product.
func (p Product) Key() NaturalKey {
	return NaturalKey{PartNumber: p.PartNumber, BranchID: p.BranchID}
}

// NaturalKey identifies a product independently of its storage ID.
type NaturalKey struct {
	PartNumber string
	BranchID   string
}

func (k NaturalKey) String() string {
	return k.PartNumber + "/" + k.BranchID
}

// RawRow maps header names to the string values of one CSV data row.
// Header fields missing from a short row are absent keys, not empty strings.
type RawRow map[string]string

// NormalizedRecord is a validated, typed row ready for the upsert engine.
// ID, CreatedAt and UpdatedAt are parsed when supplied but never written.
type NormalizedRecord struct {
	ID         *string
	PartNumber string
	BranchID   string
	PartPrice  float64
	ShortDesc  *string
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
}

// Key returns the natural key of the record.
func (r NormalizedRecord) Key() NaturalKey {
	return NaturalKey{PartNumber: r.PartNumber, BranchID: r.BranchID}
}

// Session is a transactional unit of work over the product store.
//
// Products returned by FindByNaturalKey and products passed to Add are tracked
// by the session: changes made to them are written on Commit. A session is
// owned by a single goroutine and must be closed on every exit path.
type Session interface {
	// FindByNaturalKey returns the tracked product for key. Products staged
	// earlier in the same session are visible.
	FindByNaturalKey(ctx context.Context, key NaturalKey) (*Product, bool, error)

	// Add stages a new product for insertion at commit time.
	Add(ctx context.Context, p *Product) error

	// Commit writes every tracked change atomically. A natural key that
	// already exists in storage fails the commit with ErrConflict.
	Commit(ctx context.Context) error

	// Rollback discards every tracked change.
	Rollback(ctx context.Context) error

	// Close releases the session. Uncommitted work is rolled back.
	Close() error
}

// SessionFactory opens sessions. One factory is built at startup and shared.
type SessionFactory interface {
	Begin(ctx context.Context) (Session, error)
}

// ProductReader serves the read side of the API directly from storage.
type ProductReader interface {
	// ListProducts returns up to limit products after skipping skip, in
	// storage-native order.
	ListProducts(ctx context.Context, skip, limit int) ([]Product, error)

	// GetProduct returns the product with the exact natural key.
	GetProduct(ctx context.Context, key NaturalKey) (Product, bool, error)
}

// ProductSearcher answers natural-key lookups from a secondary index.
type ProductSearcher interface {
	SearchByNaturalKey(ctx context.Context, key NaturalKey, limit int) ([]Product, error)
}

// ProductIndexer keeps a secondary index in step with committed products.
type ProductIndexer interface {
	IndexProducts(ctx context.Context, products []Product) error
}

// ListCache caches paginated listings.
type ListCache interface {
	GetList(ctx context.Context, skip, limit int) ([]Product, bool, error)
	SetList(ctx context.Context, skip, limit int, products []Product) error
	Invalidate(ctx context.Context) error
}

// ProductQuery selects products for the list endpoint and GraphQL query.
// When both PartNumber and BranchID are set the query is an exact match;
// otherwise Skip and Limit paginate.
type ProductQuery struct {
	Skip       int
	Limit      int
	PartNumber string
	BranchID   string
}

// Exact reports whether q is a natural-key lookup.
func (q ProductQuery) Exact() bool {
	return q.PartNumber != "" && q.BranchID != ""
}

// Key returns the natural key of an exact query.
func (q ProductQuery) Key() NaturalKey {
	return NaturalKey{PartNumber: q.PartNumber, BranchID: q.BranchID}
}

// Job is one ingestion document queued for asynchronous processing.
type Job struct {
	ID         string    `json:"id"`
	Database   string    `json:"database"` // connection descriptor resolved by the worker
	FileName   string    `json:"file_name,omitempty"`
	Content    string    `json:"content"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// JobState is the lifecycle state of a queued job.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobProcessing JobState = "processing"
	JobDone       JobState = "done"
	JobFailed     JobState = "failed"
)

// JobStatus is the externally visible outcome of a job.
type JobStatus struct {
	ID        string    `json:"id"`
	State     JobState  `json:"state"`
	FileName  string    `json:"file_name,omitempty"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dispatcher hands jobs to workers outside the request cycle.
type Dispatcher interface {
	// Dispatch enqueues job and returns its ID without waiting for processing.
	Dispatch(ctx context.Context, job Job) (string, error)

	// Status returns the last recorded status of a job, or ErrJobNotFound.
	Status(ctx context.Context, id string) (JobStatus, error)
}

// IngestResult summarises one committed ingestion document.
type IngestResult struct {
	Rows     int
	Inserted int
	Updated  int
	Products []Product // committed state of every touched product, in file order
	Duration time.Duration
	Message  string
}
