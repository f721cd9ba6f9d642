package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/partsync/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Migrate creates the products table and its indexes when missing.
func Migrate(ctx context.Context, db DBTX) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", classify(err))
		}
	}
	return nil
}

// Factory opens Postgres-backed sessions from a shared pool. It is built once
// at startup and shared by every request and job.
type Factory struct {
	pool *pgxpool.Pool
}

// NewFactory wraps pool.
func NewFactory(pool *pgxpool.Pool) *Factory {
	return &Factory{pool: pool}
}

// Begin starts a transaction-scoped session.
func (f *Factory) Begin(ctx context.Context) (core.Session, error) {
	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", classify(err))
	}
	return &session{
		tx:       tx,
		q:        New(tx),
		tracked:  make(map[core.NaturalKey]*core.Product),
		loaded:   make(map[core.NaturalKey]core.Product),
		inserted: nil,
	}, nil
}

// ListProducts returns a page ordered by id. skip and limit saturate at
// math.MaxInt32.
func (f *Factory) ListProducts(ctx context.Context, skip, limit int) ([]core.Product, error) {
	rows, err := New(f.pool).ListProducts(ctx, ListProductsParams{
		Offset: clampInt32(skip),
		Limit:  clampInt32(limit),
	})
	if err != nil {
		return nil, classify(err)
	}
	out := make([]core.Product, len(rows))
	for i, r := range rows {
		out[i] = toCore(r)
	}
	return out, nil
}

// GetProduct looks a product up by natural key.
func (f *Factory) GetProduct(ctx context.Context, key core.NaturalKey) (core.Product, bool, error) {
	row, err := New(f.pool).GetProductByNaturalKey(ctx, GetProductByNaturalKeyParams{
		PartNumber: key.PartNumber,
		BranchID:   key.BranchID,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Product{}, false, nil
	}
	if err != nil {
		return core.Product{}, false, classify(err)
	}
	return toCore(row), true, nil
}

// Count returns the number of stored products.
func (f *Factory) Count(ctx context.Context) (int64, error) {
	n, err := New(f.pool).CountProducts(ctx)
	return n, classify(err)
}

// session keeps an identity map of products read or staged in the
// transaction. Writes are flushed in Commit.
type session struct {
	tx       pgx.Tx
	q        *Queries
	tracked  map[core.NaturalKey]*core.Product
	loaded   map[core.NaturalKey]core.Product // state as read, for dirty checks
	inserted []*core.Product
	done     bool
}

func (s *session) FindByNaturalKey(ctx context.Context, key core.NaturalKey) (*core.Product, bool, error) {
	if p, ok := s.tracked[key]; ok {
		return p, true, nil
	}

	row, err := s.q.GetProductByNaturalKey(ctx, GetProductByNaturalKeyParams{
		PartNumber: key.PartNumber,
		BranchID:   key.BranchID,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify(err)
	}

	p := toCore(row)
	s.loaded[key] = p
	s.tracked[key] = &p
	return &p, true, nil
}

func (s *session) Add(_ context.Context, p *core.Product) error {
	key := p.Key()
	if _, ok := s.tracked[key]; ok {
		return fmt.Errorf("database: %s already tracked in session", key)
	}
	s.tracked[key] = p
	s.inserted = append(s.inserted, p)
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	for _, p := range s.inserted {
		id, err := s.q.InsertProduct(ctx, InsertProductParams{
			PartNumber: p.PartNumber,
			BranchID:   p.BranchID,
			PartPrice:  p.PartPrice,
			ShortDesc:  toPgText(p.ShortDesc),
			Createdat:  toPgTimestamp(p.CreatedAt),
			Updatedat:  toPgTimestamp(p.UpdatedAt),
		})
		if err != nil {
			return fmt.Errorf("insert %s: %w", p.Key(), classify(err))
		}
		p.ID = id
	}

	for key, before := range s.loaded {
		p := s.tracked[key]
		if !dirty(before, *p) {
			continue
		}
		err := s.q.UpdateProduct(ctx, UpdateProductParams{
			ID:        p.ID,
			PartPrice: p.PartPrice,
			ShortDesc: toPgText(p.ShortDesc),
			Updatedat: toPgTimestamp(p.UpdatedAt),
		})
		if err != nil {
			return fmt.Errorf("update %s: %w", key, classify(err))
		}
	}

	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	s.done = true
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (s *session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Rollback(ctx)
}

// classify maps driver errors onto core sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", core.ErrConflict, pgErr.ConstraintName)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrUnavailable, err)
}

func dirty(a, b core.Product) bool {
	if a.PartPrice != b.PartPrice || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return true
	}
	if (a.ShortDesc == nil) != (b.ShortDesc == nil) {
		return true
	}
	return a.ShortDesc != nil && *a.ShortDesc != *b.ShortDesc
}

func toCore(r Product) core.Product {
	p := core.Product{
		ID:         r.ID,
		PartNumber: r.PartNumber,
		BranchID:   r.BranchID,
		PartPrice:  r.PartPrice,
		CreatedAt:  r.Createdat.Time,
		UpdatedAt:  r.Updatedat.Time,
	}
	if r.ShortDesc.Valid {
		s := r.ShortDesc.String
		p.ShortDesc = &s
	}
	return p
}

func toPgText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func toPgTimestamp(t time.Time) pgtype.Timestamp {
	if t.IsZero() {
		return pgtype.Timestamp{}
	}
	return pgtype.Timestamp{Time: t.UTC(), Valid: true}
}

func clampInt32(n int) int32 {
	switch {
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < 0:
		return 0
	}
	return int32(n)
}
