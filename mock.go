package ygggo_invdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/DATA-DOG/go-sqlmock"
)

// ErrNoMockGeneration is returned by MockOpener once every prepared database
// has been handed out.
var ErrNoMockGeneration = errors.New("no more mock generations")

// MockOpener hands out one sqlmock database per pool generation, so tests can
// script what each successive pool sees across reconnects.
type MockOpener struct {
	mu    sync.Mutex
	mocks []sqlmock.Sqlmock
	dbs   []*sql.DB
	next  int
}

// NewMockOpener prepares generations sqlmock databases with default options.
// Pings are not monitored, so pool creation succeeds without scripting them.
func NewMockOpener(generations int) (*MockOpener, error) {
	o := &MockOpener{}
	for i := 0; i < generations; i++ {
		db, mock, err := sqlmock.New()
		if err != nil {
			return nil, fmt.Errorf("sqlmock generation %d: %w", i+1, err)
		}
		o.Append(db, mock)
	}
	return o, nil
}

// Append queues a database built by the caller, for example with a custom
// query matcher, as the next generation.
func (o *MockOpener) Append(db *sql.DB, mock sqlmock.Sqlmock) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dbs = append(o.dbs, db)
	o.mocks = append(o.mocks, mock)
}

// Open is an OpenFunc.
func (o *MockOpener) Open(_ context.Context, _ Config) (*sql.DB, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.next >= len(o.dbs) {
		return nil, ErrNoMockGeneration
	}
	db := o.dbs[o.next]
	o.next++
	return db, nil
}

// Opened returns how many generations have been handed out.
func (o *MockOpener) Opened() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.next
}

// Mock returns the expectations for generation i, counting from zero.
func (o *MockOpener) Mock(i int) sqlmock.Sqlmock {
	return o.mocks[i]
}

// ExpectationsWereMet checks every generation's expectations.
func (o *MockOpener) ExpectationsWereMet() error {
	var errs []error
	for i, m := range o.mocks {
		if err := m.ExpectationsWereMet(); err != nil {
			errs = append(errs, fmt.Errorf("generation %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

// NewMockManager returns a manager whose pools come from a fresh MockOpener.
func NewMockManager(cfg Config, generations int, opts ...Option) (*Manager, *MockOpener, error) {
	o, err := NewMockOpener(generations)
	if err != nil {
		return nil, nil, err
	}
	m, err := NewManager(cfg, append([]Option{WithOpenFunc(o.Open)}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return m, o, nil
}
