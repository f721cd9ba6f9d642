package core_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/partsync/internal/core"
	"github.com/JonMunkholm/partsync/internal/logging"
	"github.com/JonMunkholm/partsync/internal/memstore"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []core.Job
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job core.Job) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	d.jobs = append(d.jobs, job)
	return job.ID, nil
}

func (d *recordingDispatcher) Status(_ context.Context, id string) (core.JobStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, j := range d.jobs {
		if j.ID == id {
			return core.JobStatus{ID: id, State: core.JobQueued}, nil
		}
	}
	return core.JobStatus{}, core.ErrJobNotFound
}

type fakeSearcher struct {
	calls int
	limit int
}

func (s *fakeSearcher) SearchByNaturalKey(_ context.Context, key core.NaturalKey, limit int) ([]core.Product, error) {
	s.calls++
	s.limit = limit
	return []core.Product{{ID: 99, PartNumber: key.PartNumber, BranchID: key.BranchID}}, nil
}

type fakeIndexer struct {
	indexed []core.Product
	err     error
}

func (i *fakeIndexer) IndexProducts(_ context.Context, products []core.Product) error {
	i.indexed = append(i.indexed, products...)
	return i.err
}

type fakeCache struct {
	pages       map[string][]core.Product
	invalidated int
}

func (c *fakeCache) GetList(_ context.Context, skip, limit int) ([]core.Product, bool, error) {
	p, ok := c.pages[fmt.Sprint(skip, limit)]
	return p, ok, nil
}

func (c *fakeCache) SetList(_ context.Context, skip, limit int, products []core.Product) error {
	c.pages[fmt.Sprint(skip, limit)] = products
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidated++
	c.pages = map[string][]core.Product{}
	return nil
}

type fixture struct {
	svc        *core.Service
	store      *memstore.Store
	dispatcher *recordingDispatcher
	searcher   *fakeSearcher
	indexer    *fakeIndexer
	cache      *fakeCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:      memstore.New(),
		dispatcher: &recordingDispatcher{},
		searcher:   &fakeSearcher{},
		indexer:    &fakeIndexer{},
		cache:      &fakeCache{pages: map[string][]core.Product{}},
	}
	svc, err := core.NewService(core.Dependencies{
		Sessions:       f.store,
		Reader:         f.store,
		Dispatcher:     f.dispatcher,
		Searcher:       f.searcher,
		Indexer:        f.indexer,
		Cache:          f.cache,
		Database:       "primary",
		MaxUploadBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	f.svc = svc
	return f
}

func seed(t *testing.T, svc *core.Service, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("part_number,branch_id,part_price\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "P%02d,B1,%d\n", i, i)
	}
	if _, err := svc.ProcessDocument(context.Background(), b.String()); err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
}

func TestNewService_RequiresStore(t *testing.T) {
	if _, err := core.NewService(core.Dependencies{Database: "primary"}); err == nil {
		t.Error("NewService() without store succeeded")
	}
	store := memstore.New()
	if _, err := core.NewService(core.Dependencies{Sessions: store, Reader: store}); err == nil {
		t.Error("NewService() without descriptor succeeded")
	}
}

func TestListProducts_Pagination(t *testing.T) {
	f := newFixture(t)
	seed(t, f.svc, 25)

	tests := []struct {
		skip, limit int
		want        int
	}{
		{0, 10, 10},
		{20, 10, 5},
		{30, 10, 0},
		{1, math.MaxInt, 24},
		{math.MaxInt, 10, 0},
	}
	for _, tt := range tests {
		got, err := f.svc.ListProducts(context.Background(), core.ProductQuery{Skip: tt.skip, Limit: tt.limit})
		if err != nil {
			t.Fatalf("ListProducts() error = %v", err)
		}
		if len(got) != tt.want {
			t.Errorf("ListProducts(skip=%d, limit=%d) = %d products, want %d", tt.skip, tt.limit, len(got), tt.want)
		}
	}

	if _, err := f.svc.ListProducts(context.Background(), core.ProductQuery{Skip: -1, Limit: 10}); err == nil {
		t.Error("negative skip accepted")
	}
}

func TestListProducts_ExactMatch(t *testing.T) {
	f := newFixture(t)
	seed(t, f.svc, 5)
	ctx := context.Background()

	got, err := f.svc.ListProducts(ctx, core.ProductQuery{Limit: 10, PartNumber: "P03", BranchID: "B1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].PartNumber != "P03" {
		t.Errorf("exact match = %+v", got)
	}

	got, err = f.svc.ListProducts(ctx, core.ProductQuery{Limit: 10, PartNumber: "P03", BranchID: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("missing key returned %+v", got)
	}

	// One filter alone paginates.
	got, _ = f.svc.ListProducts(ctx, core.ProductQuery{Limit: 10, PartNumber: "P03"})
	if len(got) != 5 {
		t.Errorf("single filter returned %d products, want 5", len(got))
	}
}

func TestListProducts_CacheInvalidatedByIngest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seed(t, f.svc, 3)

	q := core.ProductQuery{Limit: 10}
	if got, _ := f.svc.ListProducts(ctx, q); len(got) != 3 {
		t.Fatalf("first page = %d, want 3", len(got))
	}
	if _, ok := f.cache.pages[fmt.Sprint(0, 10)]; !ok {
		t.Fatal("page not cached")
	}

	before := f.cache.invalidated
	if _, err := f.svc.ProcessDocument(ctx, "part_number,branch_id,part_price\nNEW,B1,1\n"); err != nil {
		t.Fatal(err)
	}
	if f.cache.invalidated != before+1 {
		t.Errorf("invalidated = %d, want %d", f.cache.invalidated, before+1)
	}
	if got, _ := f.svc.ListProducts(ctx, q); len(got) != 4 {
		t.Errorf("page after ingest = %d, want 4", len(got))
	}
}

func TestSearchProducts_UsesIndexForExactQuery(t *testing.T) {
	f := newFixture(t)
	seed(t, f.svc, 3)
	ctx := context.Background()

	got, err := f.svc.SearchProducts(ctx, core.ProductQuery{Limit: 7, PartNumber: "P01", BranchID: "B1"})
	if err != nil {
		t.Fatal(err)
	}
	if f.searcher.calls != 1 || f.searcher.limit != 7 {
		t.Errorf("searcher calls = %d limit = %d", f.searcher.calls, f.searcher.limit)
	}
	if len(got) != 1 || got[0].ID != 99 {
		t.Errorf("SearchProducts() = %+v", got)
	}

	if _, err := f.svc.SearchProducts(ctx, core.ProductQuery{Limit: math.MaxInt, PartNumber: "P01", BranchID: "B1"}); err != nil {
		t.Fatal(err)
	}
	if f.searcher.limit != core.MaxListWindow {
		t.Errorf("searcher limit = %d, want %d", f.searcher.limit, core.MaxListWindow)
	}

	got, _ = f.svc.SearchProducts(ctx, core.ProductQuery{Limit: 10})
	if len(got) != 3 || f.searcher.calls != 2 {
		t.Errorf("pagination used searcher or returned %d", len(got))
	}
}

func TestSubmitUpload_DispatchesDecodedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body := "\xEF\xBB\xBFpart_number,branch_id,part_price,short_desc\nA1,B1,1,caf\xE9\n"
	id, err := f.svc.SubmitUpload(ctx, "products.csv", strings.NewReader(body))
	if err != nil {
		t.Fatalf("SubmitUpload() error = %v", err)
	}
	if id == "" {
		t.Fatal("empty job id")
	}

	if len(f.dispatcher.jobs) != 1 {
		t.Fatalf("dispatched %d jobs, want 1", len(f.dispatcher.jobs))
	}
	job := f.dispatcher.jobs[0]
	if job.Database != "primary" || job.FileName != "products.csv" {
		t.Errorf("job = %+v", job)
	}
	if strings.HasPrefix(job.Content, "\uFEFF") {
		t.Error("BOM not stripped")
	}
	if !strings.Contains(job.Content, "caf\uFFFD") {
		t.Errorf("invalid byte not replaced: %q", job.Content)
	}
	if f.store.Len() != 0 {
		t.Error("upload was processed synchronously")
	}

	status, err := f.svc.JobStatus(ctx, id)
	if err != nil || status.State != core.JobQueued {
		t.Errorf("JobStatus() = %+v, %v", status, err)
	}
}

func TestSubmitUpload_TooLarge(t *testing.T) {
	store := memstore.New()
	svc, _ := core.NewService(core.Dependencies{
		Sessions: store, Reader: store, Dispatcher: &recordingDispatcher{},
		Database: "primary", MaxUploadBytes: 8,
	})
	_, err := svc.SubmitUpload(context.Background(), "big.csv", strings.NewReader(strings.Repeat("x", 9)))
	if err == nil || core.MapError(err).Code != "FILE001" {
		t.Errorf("SubmitUpload() error = %v, want FILE001", err)
	}
}

func TestSubmitUpload_DispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = core.ErrQueueFull

	_, err := f.svc.SubmitUpload(context.Background(), "a.csv", strings.NewReader(widgetDoc))
	if !errors.Is(err, core.ErrQueueFull) {
		t.Errorf("SubmitUpload() error = %v, want ErrQueueFull", err)
	}
	if f.svc.Limiter().ActiveCount() != 0 {
		t.Error("limiter slot leaked")
	}
}

func TestProcessJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.svc.ProcessJob(ctx, core.Job{ID: "j1", Database: "primary", Content: widgetDoc})
	if err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !strings.HasPrefix(msg, core.IngestSuccessMessage) {
		t.Errorf("message = %q", msg)
	}
	if len(f.indexer.indexed) != 1 || f.indexer.indexed[0].ID == 0 {
		t.Errorf("indexed = %+v", f.indexer.indexed)
	}

	_, err = f.svc.ProcessJob(ctx, core.Job{ID: "j2", Database: "other", Content: widgetDoc})
	if !errors.Is(err, core.ErrUnknownDatabase) {
		t.Errorf("ProcessJob(other) error = %v, want ErrUnknownDatabase", err)
	}
}

func TestProcessDocument_IndexFailureDoesNotFailIngest(t *testing.T) {
	f := newFixture(t)
	f.indexer.err = errors.New("search index unreachable")

	if _, err := f.svc.ProcessDocument(context.Background(), widgetDoc); err != nil {
		t.Fatalf("ProcessDocument() error = %v", err)
	}
	if f.store.Len() != 1 {
		t.Errorf("store has %d products, want 1", f.store.Len())
	}
}

func TestUpsertProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, created, err := f.svc.UpsertProduct(ctx, core.RawRow{"part_number": "A1", "branch_id": "B1", "part_price": "3"})
	if err != nil || !created || p.ID == 0 {
		t.Fatalf("UpsertProduct() = %+v, %v, %v", p, created, err)
	}

	p2, created, err := f.svc.UpsertProduct(ctx, core.RawRow{"part_number": "A1", "branch_id": "B1", "part_price": "4"})
	if err != nil || created || p2.ID != p.ID || p2.PartPrice != 4 {
		t.Fatalf("second UpsertProduct() = %+v, %v, %v", p2, created, err)
	}

	_, _, err = f.svc.UpsertProduct(ctx, core.RawRow{"part_number": "A1"})
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("invalid UpsertProduct() error = %v", err)
	}
}

// failingSession fails lookups and rollbacks.
type failingSession struct {
	core.Session
	lookupErr, rollbackErr error
}

func (f failingSession) FindByNaturalKey(context.Context, core.NaturalKey) (*core.Product, bool, error) {
	return nil, false, f.lookupErr
}

func (f failingSession) Rollback(context.Context) error {
	return f.rollbackErr
}

type sessionFunc func(ctx context.Context) (core.Session, error)

func (fn sessionFunc) Begin(ctx context.Context) (core.Session, error) { return fn(ctx) }

func TestUpsertProduct_RollbackFailureLogged(t *testing.T) {
	store := memstore.New()
	lookupErr := errors.New("lookup broke")
	sessions := sessionFunc(func(ctx context.Context) (core.Session, error) {
		inner, err := store.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return failingSession{Session: inner, lookupErr: lookupErr, rollbackErr: errors.New("rollback broke")}, nil
	})
	svc, err := core.NewService(core.Dependencies{Sessions: sessions, Reader: store, Database: "primary"})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	ctx := logging.NewContext(context.Background(), logging.New(&buf, "debug", "text"))

	_, _, err = svc.UpsertProduct(ctx, core.RawRow{"part_number": "A1", "branch_id": "B1", "part_price": "3"})
	if !errors.Is(err, lookupErr) {
		t.Fatalf("UpsertProduct() error = %v, want %v", err, lookupErr)
	}
	out := buf.String()
	if !strings.Contains(out, "rollback failed") || !strings.Contains(out, "rollback broke") {
		t.Errorf("log output %q missing rollback failure", out)
	}
	if store.Len() != 0 {
		t.Errorf("store Len() = %d, want 0", store.Len())
	}
}
