package core_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/partsync/internal/core"
	"github.com/JonMunkholm/partsync/internal/memstore"
)

// stepClock advances one second per call so updates are strictly later.
type stepClock struct {
	t time.Time
}

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newIngester() *core.Ingester {
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return core.NewIngester(core.NewUpsertEngine(clock.Now))
}

func ingest(t *testing.T, in *core.Ingester, store *memstore.Store, content string) (*core.IngestResult, error) {
	t.Helper()
	ctx := context.Background()
	sess, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer sess.Close()
	return in.Ingest(ctx, sess, content)
}

func allProducts(t *testing.T, store *memstore.Store) []core.Product {
	t.Helper()
	products, err := store.ListProducts(context.Background(), 0, 1000)
	if err != nil {
		t.Fatalf("ListProducts() error = %v", err)
	}
	return products
}

const widgetDoc = "part_number,branch_id,part_price,short_desc\nA1,B1,9.99,Widget\n"

func TestIngest_SingleRowIntoEmptyStore(t *testing.T) {
	store := memstore.New()

	result, err := ingest(t, newIngester(), store, widgetDoc)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Inserted != 1 || result.Updated != 0 {
		t.Errorf("result = %+v, want 1 insert", result)
	}
	if result.Message != core.IngestSuccessMessage {
		t.Errorf("Message = %q", result.Message)
	}

	products := allProducts(t, store)
	if len(products) != 1 {
		t.Fatalf("store has %d products, want 1", len(products))
	}
	p := products[0]
	if p.PartNumber != "A1" || p.BranchID != "B1" || p.PartPrice != 9.99 {
		t.Errorf("product = %+v", p)
	}
	if p.ShortDesc == nil || *p.ShortDesc != "Widget" {
		t.Errorf("ShortDesc = %v, want Widget", p.ShortDesc)
	}
	if !p.CreatedAt.Equal(p.UpdatedAt) {
		t.Errorf("createdat %v != updatedat %v", p.CreatedAt, p.UpdatedAt)
	}
	if p.ID == 0 || result.Products[0].ID != p.ID {
		t.Errorf("ID = %d, result ID = %d", p.ID, result.Products[0].ID)
	}
}

func TestIngest_ReingestUpdatesInPlace(t *testing.T) {
	store := memstore.New()
	in := newIngester()

	if _, err := ingest(t, in, store, widgetDoc); err != nil {
		t.Fatal(err)
	}
	original := allProducts(t, store)[0]

	result, err := ingest(t, in, store, strings.Replace(widgetDoc, "9.99", "12.50", 1))
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if result.Updated != 1 || result.Inserted != 0 {
		t.Errorf("result = %+v, want 1 update", result)
	}

	products := allProducts(t, store)
	if len(products) != 1 {
		t.Fatalf("store has %d products, want 1", len(products))
	}
	p := products[0]
	if p.PartPrice != 12.50 {
		t.Errorf("PartPrice = %v, want 12.50", p.PartPrice)
	}
	if p.ID != original.ID {
		t.Errorf("ID changed from %d to %d", original.ID, p.ID)
	}
	if !p.CreatedAt.Equal(original.CreatedAt) {
		t.Errorf("CreatedAt changed from %v to %v", original.CreatedAt, p.CreatedAt)
	}
	if !p.UpdatedAt.After(original.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", p.UpdatedAt, original.CreatedAt)
	}
}

func TestIngest_MissingPriceCommitsNothing(t *testing.T) {
	store := memstore.New()
	in := newIngester()
	if _, err := ingest(t, in, store, widgetDoc); err != nil {
		t.Fatal(err)
	}
	before := allProducts(t, store)

	doc := "part_number,branch_id,part_price,short_desc\nA1,B1,1.00,Changed\nA2,B1\nA3,B1,3.00,New\n"
	_, err := ingest(t, in, store, doc)
	if err == nil {
		t.Fatal("Ingest() succeeded, want validation failure")
	}

	var ingestErr *core.IngestError
	if !errors.As(err, &ingestErr) {
		t.Fatalf("error %T is not *IngestError", err)
	}
	if ingestErr.Line != 3 {
		t.Errorf("Line = %d, want 3", ingestErr.Line)
	}
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("error %v does not match ErrValidation", err)
	}

	after := allProducts(t, store)
	if len(after) != len(before) || after[0].PartPrice != before[0].PartPrice || *after[0].ShortDesc != "Widget" {
		t.Errorf("store changed: before %+v after %+v", before, after)
	}
}

func TestIngest_InvalidRowsFailWholeDocument(t *testing.T) {
	header := "part_number,branch_id,part_price\n"
	tests := []struct {
		name string
		row  string
	}{
		{"missing part_number", ",B1,1"},
		{"missing branch_id", "A9,,1"},
		{"missing part_price", "A9,B1"},
		{"non-numeric part_price", "A9,B1,cheap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			_, err := ingest(t, newIngester(), store, header+"A1,B1,1\n"+tt.row+"\nA2,B1,2\n")
			if !errors.Is(err, core.ErrValidation) {
				t.Fatalf("Ingest() error = %v, want ErrValidation", err)
			}
			if store.Len() != 0 {
				t.Errorf("store has %d products, want 0", store.Len())
			}
		})
	}
}

func TestIngest_LastWriteWinsWithinDocument(t *testing.T) {
	store := memstore.New()
	doc := "part_number,branch_id,part_price,short_desc\nA1,B1,1.00,first\nA1,B1,2.00,second\n"

	result, err := ingest(t, newIngester(), store, doc)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Inserted != 1 || result.Updated != 1 {
		t.Errorf("result = %+v, want 1 insert and 1 update", result)
	}
	if len(result.Products) != 1 {
		t.Errorf("result.Products has %d entries, want 1", len(result.Products))
	}

	products := allProducts(t, store)
	if len(products) != 1 {
		t.Fatalf("store has %d products, want 1", len(products))
	}
	if products[0].PartPrice != 2.00 || *products[0].ShortDesc != "second" {
		t.Errorf("product = %+v, want second row", products[0])
	}
}

func TestIngest_Idempotent(t *testing.T) {
	var b strings.Builder
	b.WriteString("part_number,branch_id,part_price,short_desc\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "P%d,B%d,%d.25,item %d\n", i, i%3, i, i)
	}
	doc := b.String()

	store := memstore.New()
	in := newIngester()

	if _, err := ingest(t, in, store, doc); err != nil {
		t.Fatal(err)
	}
	first := allProducts(t, store)
	if len(first) != 40 {
		t.Fatalf("store has %d products, want 40", len(first))
	}

	result, err := ingest(t, in, store, doc)
	if err != nil {
		t.Fatal(err)
	}
	if result.Updated != 40 || result.Inserted != 0 {
		t.Errorf("second run = %+v, want 40 updates", result)
	}

	second := allProducts(t, store)
	if len(second) != 40 {
		t.Fatalf("store has %d products after second run, want 40", len(second))
	}
	for i := range second {
		a, b := first[i], second[i]
		if a.ID != b.ID || a.PartPrice != b.PartPrice || !a.CreatedAt.Equal(b.CreatedAt) {
			t.Errorf("row %d changed beyond updatedat: %+v -> %+v", i, a, b)
		}
		if !b.UpdatedAt.After(a.UpdatedAt) {
			t.Errorf("row %d updatedat not refreshed", i)
		}
	}
}

func TestIngest_EmptyDocuments(t *testing.T) {
	for _, doc := range []string{"", "   \n", "part_number,branch_id,part_price\n"} {
		store := memstore.New()
		result, err := ingest(t, newIngester(), store, doc)
		if err != nil {
			t.Errorf("Ingest(%q) error = %v", doc, err)
			continue
		}
		if result.Rows != 0 || store.Len() != 0 {
			t.Errorf("Ingest(%q) = %+v", doc, result)
		}
	}
}

func TestIngest_ShortDescClearedWhenAbsent(t *testing.T) {
	store := memstore.New()
	in := newIngester()
	if _, err := ingest(t, in, store, widgetDoc); err != nil {
		t.Fatal(err)
	}

	if _, err := ingest(t, in, store, "part_number,branch_id,part_price\nA1,B1,3\n"); err != nil {
		t.Fatal(err)
	}
	if p := allProducts(t, store)[0]; p.ShortDesc != nil {
		t.Errorf("ShortDesc = %q, want nil", *p.ShortDesc)
	}
}

// racingSession lets a competing ingestion commit just before its own commit.
type racingSession struct {
	core.Session
	before func()
}

func (r racingSession) Commit(ctx context.Context) error {
	r.before()
	return r.Session.Commit(ctx)
}

func TestIngest_ConcurrentInsertConflict(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	in := newIngester()

	inner, _ := store.Begin(ctx)
	defer inner.Close()
	loser := racingSession{Session: inner, before: func() {
		if _, err := ingest(t, in, store, widgetDoc); err != nil {
			t.Errorf("competing Ingest() error = %v", err)
		}
	}}

	_, err := in.Ingest(ctx, loser, widgetDoc)
	if !errors.Is(err, core.ErrConflict) {
		t.Fatalf("Ingest() error = %v, want ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "integrity error during commit") {
		t.Errorf("error message = %q", err.Error())
	}
	if store.Len() != 1 {
		t.Errorf("store has %d products, want 1", store.Len())
	}
}
