// Package memstore is an in-process product store with transactional
// sessions. It backs single-binary deployments and tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JonMunkholm/partsync/internal/core"
)

var errSessionDone = errors.New("memstore: session already finished")

// Store holds committed products in insertion order.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[core.NaturalKey]core.Product
	order  []core.NaturalKey
}

// New returns an empty store.
func New() *Store {
	return &Store{byKey: make(map[core.NaturalKey]core.Product)}
}

// Len returns the number of committed products.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Begin opens a session over the store.
func (s *Store) Begin(ctx context.Context) (core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{
		store:   s,
		tracked: make(map[core.NaturalKey]*core.Product),
	}, nil
}

// ListProducts returns a page in insertion order.
func (s *Store) ListProducts(_ context.Context, skip, limit int) ([]core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if skip >= len(s.order) || limit <= 0 {
		return []core.Product{}, nil
	}
	end := len(s.order)
	if limit < end-skip {
		end = skip + limit
	}

	out := make([]core.Product, 0, end-skip)
	for _, key := range s.order[skip:end] {
		out = append(out, clone(s.byKey[key]))
	}
	return out, nil
}

// GetProduct returns the product with key.
func (s *Store) GetProduct(_ context.Context, key core.NaturalKey) (core.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byKey[key]
	if !ok {
		return core.Product{}, false, nil
	}
	return clone(p), true, nil
}

// session tracks working copies. Nothing reaches the store before Commit.
type session struct {
	store   *Store
	tracked map[core.NaturalKey]*core.Product
	added   []*core.Product
	done    bool
}

func (t *session) FindByNaturalKey(_ context.Context, key core.NaturalKey) (*core.Product, bool, error) {
	if t.done {
		return nil, false, errSessionDone
	}
	if p, ok := t.tracked[key]; ok {
		return p, true, nil
	}

	t.store.mu.RLock()
	stored, ok := t.store.byKey[key]
	t.store.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	p := clone(stored)
	t.tracked[key] = &p
	return &p, true, nil
}

func (t *session) Add(_ context.Context, p *core.Product) error {
	if t.done {
		return errSessionDone
	}
	key := p.Key()
	if _, ok := t.tracked[key]; ok {
		return fmt.Errorf("memstore: %s already tracked in session", key)
	}
	t.tracked[key] = p
	t.added = append(t.added, p)
	return nil
}

// Commit applies every tracked product under one lock. If any staged insert
// collides with a committed key, nothing is applied.
func (t *session) Commit(ctx context.Context) error {
	if t.done {
		return errSessionDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range t.added {
		if _, exists := s.byKey[p.Key()]; exists {
			return fmt.Errorf("insert %s: %w", p.Key(), core.ErrConflict)
		}
	}

	for _, p := range t.added {
		s.nextID++
		p.ID = s.nextID
		s.byKey[p.Key()] = clone(*p)
		s.order = append(s.order, p.Key())
	}
	for key, p := range t.tracked {
		if p.ID == 0 {
			continue
		}
		if _, exists := s.byKey[key]; exists {
			s.byKey[key] = clone(*p)
		}
	}

	t.done = true
	return nil
}

func (t *session) Rollback(_ context.Context) error {
	t.tracked = make(map[core.NaturalKey]*core.Product)
	t.added = nil
	t.done = true
	return nil
}

func (t *session) Close() error {
	if !t.done {
		return t.Rollback(context.Background())
	}
	return nil
}

func clone(p core.Product) core.Product {
	if p.ShortDesc != nil {
		v := *p.ShortDesc
		p.ShortDesc = &v
	}
	return p
}
