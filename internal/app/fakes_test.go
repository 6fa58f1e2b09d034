package app_test

import (
	"context"
	"sync"
	"time"

	"lender_directory/internal/app"
	"lender_directory/internal/domain"
	"lender_directory/internal/storage/memory"
)

// ---- fakes ----

// flakyStore is the in-memory store with injectable failures per table.
type flakyStore struct {
	*memory.Store

	mu        sync.Mutex
	selectErr func(table string, q domain.Query) error
	insertErr map[string]error
	updateErr map[string]error
	deleteErr map[string]error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		Store:     memory.New(),
		insertErr: map[string]error{},
		updateErr: map[string]error{},
		deleteErr: map[string]error{},
	}
}

func (f *flakyStore) failInsert(table string, err error) {
	f.mu.Lock()
	f.insertErr[table] = err
	f.mu.Unlock()
}

func (f *flakyStore) failDelete(table string, err error) {
	f.mu.Lock()
	f.deleteErr[table] = err
	f.mu.Unlock()
}

func (f *flakyStore) failSelect(fn func(table string, q domain.Query) error) {
	f.mu.Lock()
	f.selectErr = fn
	f.mu.Unlock()
}

func (f *flakyStore) Select(ctx context.Context, table string, q domain.Query) ([]domain.Row, error) {
	f.mu.Lock()
	fn := f.selectErr
	f.mu.Unlock()
	if fn != nil {
		if err := fn(table, q); err != nil {
			return nil, err
		}
	}
	return f.Store.Select(ctx, table, q)
}

func (f *flakyStore) Insert(ctx context.Context, table string, row domain.Row) (domain.Row, error) {
	f.mu.Lock()
	err := f.insertErr[table]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Insert(ctx, table, row)
}

func (f *flakyStore) Update(ctx context.Context, table, id string, patch domain.Row) error {
	f.mu.Lock()
	err := f.updateErr[table]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Update(ctx, table, id, patch)
}

func (f *flakyStore) Delete(ctx context.Context, table string, where ...domain.Eq) (int64, error) {
	f.mu.Lock()
	err := f.deleteErr[table]
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.Store.Delete(ctx, table, where...)
}

type flakyBlobs struct {
	*memory.Blobs
	deleteErr error
}

func (b *flakyBlobs) Delete(ctx context.Context, name string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.Blobs.Delete(ctx, name)
}

type report struct{ op, id string }

type recordingReporter struct {
	mu      sync.Mutex
	reports []report
}

func (r *recordingReporter) ReportPartial(op, id string, err error) {
	r.mu.Lock()
	r.reports = append(r.reports, report{op, id})
	r.mu.Unlock()
}

func (r *recordingReporter) has(op, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rp := range r.reports {
		if rp.op == op && rp.id == id {
			return true
		}
	}
	return false
}

// stepClock advances by one minute on every call.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

// ---- fixture ----

type fixture struct {
	store *flakyStore
	blobs *flakyBlobs
	rep   *recordingReporter
	repo  *app.LenderRepository
}

func newFixture() *fixture {
	f := &fixture{
		store: newFlakyStore(),
		blobs: &flakyBlobs{Blobs: memory.NewBlobs("")},
		rep:   &recordingReporter{},
	}
	f.repo = app.NewLenderRepository(f.store, f.blobs, f.rep, app.RepoConfig{
		InterestTreatments: []string{"Serviced", "Retained", "Rolled Up"},
		FetchConcurrency:   3,
		Clock:              &stepClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	})
	return f
}

func input(name string, types ...domain.LoanType) domain.LenderInput {
	if len(types) == 0 {
		types = []domain.LoanType{domain.BridgingLoans}
	}
	return domain.LenderInput{
		Name:              name,
		WebsiteLink:       "https://" + name + ".example",
		Email:             "deals@example.com",
		Rate:              domain.Range{Min: 0.5, Max: 1.5},
		Loan:              domain.Range{Min: 100000, Max: 1000000},
		Term:              domain.Range{Min: 3, Max: 24},
		MaxLoanToValue:    75,
		InterestTreatment: "Retained",
		CoveredLocation:   []string{"England", "Wales"},
		LoanTypes:         types,
	}
}

func pdf(file string) domain.Document {
	return domain.Document{Name: file, FileName: file, Data: []byte("%PDF-1.4 " + file)}
}
