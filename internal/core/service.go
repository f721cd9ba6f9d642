package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/partsync/internal/logging"
)

// DefaultListLimit is the page size when a caller does not pass one.
const DefaultListLimit = 10

// MaxListWindow caps skip and limit. Larger values are clamped, which reads
// the same rows since no store holds more products than this.
const MaxListWindow = math.MaxInt32

func (q ProductQuery) bounded() ProductQuery {
	q.Skip = min(q.Skip, MaxListWindow)
	q.Limit = min(q.Limit, MaxListWindow)
	return q
}

// ProcessTimeout bounds one ingestion document on a worker.
var ProcessTimeout = 10 * time.Minute

// Dependencies wires a Service. Sessions, Reader and Database are required;
// the rest are optional and switched off when nil.
type Dependencies struct {
	Sessions   SessionFactory
	Reader     ProductReader
	Dispatcher Dispatcher
	Searcher   ProductSearcher
	Indexer    ProductIndexer
	Cache      ListCache
	Limiter    *UploadLimiter

	// Database is the connection descriptor stamped on dispatched jobs. A
	// worker only processes jobs that carry its own descriptor.
	Database string

	MaxUploadBytes int64
	Now            func() time.Time
}

// Service provides the product operations shared by the HTTP server, the
// GraphQL schema and the workers.
type Service struct {
	sessions   SessionFactory
	reader     ProductReader
	dispatcher Dispatcher
	searcher   ProductSearcher
	indexer    ProductIndexer
	cache      ListCache
	limiter    *UploadLimiter
	database   string
	maxUpload  int64
	engine     *UpsertEngine
	ingester   *Ingester
}

// NewService creates a new Service instance.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Sessions == nil || deps.Reader == nil {
		return nil, errors.New("core: session factory and product reader are required")
	}
	if deps.Database == "" {
		return nil, errors.New("core: database descriptor is required")
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewUploadLimiter(DefaultMaxConcurrentUploads, DefaultMaxWaitTime)
	}
	engine := NewUpsertEngine(deps.Now)

	return &Service{
		sessions:   deps.Sessions,
		reader:     deps.Reader,
		dispatcher: deps.Dispatcher,
		searcher:   deps.Searcher,
		indexer:    deps.Indexer,
		cache:      deps.Cache,
		limiter:    limiter,
		database:   deps.Database,
		maxUpload:  deps.MaxUploadBytes,
		engine:     engine,
		ingester:   NewIngester(engine),
	}, nil
}

// Database returns the connection descriptor of this service's primary store.
func (s *Service) Database() string {
	return s.database
}

// Limiter returns the upload limiter, for draining on shutdown.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// ListProducts serves the REST list endpoint. An exact query returns at most
// one product; otherwise the page is read through the list cache when one is
// configured.
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	if q.Skip < 0 || q.Limit < 0 {
		return nil, fmt.Errorf("%w: skip=%d limit=%d", ErrInvalidQuery, q.Skip, q.Limit)
	}
	q = q.bounded()

	if q.Exact() {
		p, found, err := s.reader.GetProduct(ctx, q.Key())
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", q.Key(), err)
		}
		if !found {
			return []Product{}, nil
		}
		return []Product{p}, nil
	}

	if s.cache != nil {
		products, hit, err := s.cache.GetList(ctx, q.Skip, q.Limit)
		if err != nil {
			logging.FromContext(ctx).Warn("list cache read failed", "error", err)
		} else if hit {
			return products, nil
		}
	}

	products, err := s.reader.ListProducts(ctx, q.Skip, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []Product{}
	}

	if s.cache != nil {
		if err := s.cache.SetList(ctx, q.Skip, q.Limit, products); err != nil {
			logging.FromContext(ctx).Warn("list cache write failed", "error", err)
		}
	}
	return products, nil
}

// SearchProducts serves the GraphQL products query. Exact queries go to the
// search index when one is configured.
func (s *Service) SearchProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	if !q.Exact() || s.searcher == nil {
		return s.ListProducts(ctx, q)
	}
	if q.Limit < 0 {
		return nil, fmt.Errorf("%w: limit=%d", ErrInvalidQuery, q.Limit)
	}
	q = q.bounded()

	products, err := s.searcher.SearchByNaturalKey(ctx, q.Key(), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Key(), err)
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

// SubmitUpload decodes an uploaded document and dispatches it for background
// ingestion. It returns the job ID as soon as the job is queued.
func (s *Service) SubmitUpload(ctx context.Context, fileName string, r io.Reader) (string, error) {
	if s.dispatcher == nil {
		return "", fmt.Errorf("dispatch upload: %w", ErrUnavailable)
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	content, err := DecodeUpload(r, s.maxUpload)
	if err != nil {
		return "", err
	}

	job := Job{
		ID:         uuid.New().String(),
		Database:   s.database,
		FileName:   fileName,
		Content:    content,
		EnqueuedAt: time.Now().UTC(),
	}

	id, err := s.dispatcher.Dispatch(ctx, job)
	if err != nil {
		return "", fmt.Errorf("dispatch upload: %w", err)
	}

	logging.FromContext(ctx).Info("upload dispatched",
		"job_id", id,
		"file", fileName,
		"bytes", len(content),
	)
	return id, nil
}

// JobStatus returns the recorded status of an upload job.
func (s *Service) JobStatus(ctx context.Context, id string) (JobStatus, error) {
	if s.dispatcher == nil {
		return JobStatus{}, ErrJobNotFound
	}
	return s.dispatcher.Status(ctx, id)
}

// ProcessJob is the worker entry point. It returns the message recorded as the
// job's outcome.
func (s *Service) ProcessJob(ctx context.Context, job Job) (string, error) {
	if job.Database != s.database {
		return "", fmt.Errorf("job %s: %w %q", job.ID, ErrUnknownDatabase, job.Database)
	}

	ctx, cancel := context.WithTimeout(ctx, ProcessTimeout)
	defer cancel()

	result, err := s.ProcessDocument(ctx, job.Content)
	if err != nil {
		return "", err
	}
	return result.Summary(), nil
}

// ProcessDocument ingests content in its own session. The session is closed on
// every path. After a commit, the search index and list cache are refreshed;
// failures there are logged and do not fail the ingestion.
func (s *Service) ProcessDocument(ctx context.Context, content string) (*IngestResult, error) {
	logger := logging.FromContext(ctx)

	sess, err := s.sessions.Begin(ctx)
	if err != nil {
		return nil, &IngestError{Err: fmt.Errorf("begin session: %w", err)}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("session close failed", "error", err)
		}
	}()

	logger.Info("ingestion started", "bytes", len(content))

	result, err := s.ingester.Ingest(ctx, sess, content)
	if err != nil {
		logger.Error("ingestion failed", "error", err)
		return nil, err
	}

	logger.Info("ingestion committed",
		"rows", result.Rows,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"duration", result.Duration,
	)

	s.afterCommit(ctx, result.Products)
	return result, nil
}

// UpsertProduct applies a single row through the same validation and upsert
// path as a document and commits it. created reports whether it was inserted.
func (s *Service) UpsertProduct(ctx context.Context, raw RawRow) (product Product, created bool, err error) {
	rec, err := ValidateRow(raw, 1)
	if err != nil {
		return Product{}, false, err
	}

	sess, err := s.sessions.Begin(ctx)
	if err != nil {
		return Product{}, false, fmt.Errorf("begin session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logging.FromContext(ctx).Warn("session close failed", "error", err)
		}
	}()

	p, outcome, err := s.engine.ApplyRecord(ctx, sess, rec)
	if err != nil {
		if rbErr := sess.Rollback(ctx); rbErr != nil {
			logging.FromContext(ctx).Error("rollback failed", "error", rbErr)
		}
		return Product{}, false, err
	}
	if err := sess.Commit(ctx); err != nil {
		return Product{}, false, &IngestError{Err: err}
	}

	logging.FromContext(ctx).Info("product upserted", "key", rec.Key().String(), "outcome", outcome.String())
	s.afterCommit(ctx, []Product{*p})
	return *p, outcome == Inserted, nil
}

func (s *Service) afterCommit(ctx context.Context, products []Product) {
	if s.indexer != nil && len(products) > 0 {
		if err := s.indexer.IndexProducts(ctx, products); err != nil {
			logging.FromContext(ctx).Warn("search indexing failed", "products", len(products), "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			logging.FromContext(ctx).Warn("list cache invalidation failed", "error", err)
		}
	}
}
