package retry_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"lender_directory/internal/adapters/retry"
	"lender_directory/internal/domain"
)

// flakyStore fails the first n calls of every operation with err.
type flakyStore struct {
	n     int
	err   error
	calls map[string]int
}

func (f *flakyStore) hit(op string) error {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
	if f.calls[op] <= f.n {
		return f.err
	}
	return nil
}

func (f *flakyStore) Select(ctx context.Context, table string, q domain.Query) ([]domain.Row, error) {
	if err := f.hit("select"); err != nil {
		return nil, err
	}
	return []domain.Row{{"id": "l1"}}, nil
}

func (f *flakyStore) Insert(ctx context.Context, table string, row domain.Row) (domain.Row, error) {
	if err := f.hit("insert"); err != nil {
		return nil, err
	}
	return row, nil
}

func (f *flakyStore) Update(ctx context.Context, table, id string, patch domain.Row) error {
	return f.hit("update")
}

func (f *flakyStore) Delete(ctx context.Context, table string, where ...domain.Eq) (int64, error) {
	if err := f.hit("delete"); err != nil {
		return 0, err
	}
	return 1, nil
}

var transient = fmt.Errorf("dial: %w", domain.ErrUnavailable)

func TestStore_RetriesTransientSelect(t *testing.T) {
	inner := &flakyStore{n: 2, err: transient}
	s := retry.NewStore(inner, 3, 0).WithBaseDelay(time.Millisecond)

	rows, err := s.Select(context.Background(), domain.TableLenders, domain.Query{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rows) != 1 || inner.calls["select"] != 3 {
		t.Fatalf("rows=%v calls=%d", rows, inner.calls["select"])
	}
}

func TestStore_GivesUpAfterAttempts(t *testing.T) {
	inner := &flakyStore{n: 5, err: transient}
	s := retry.NewStore(inner, 2, 0).WithBaseDelay(time.Millisecond)

	err := s.Update(context.Background(), domain.TableLenders, "l1", domain.Row{"name": "x"})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	if inner.calls["update"] != 2 {
		t.Fatalf("expected 2 attempts, got %d", inner.calls["update"])
	}
}

func TestStore_DoesNotRetryPermanentOrInsert(t *testing.T) {
	inner := &flakyStore{n: 1, err: fmt.Errorf("gone: %w", domain.ErrNotFound)}
	s := retry.NewStore(inner, 3, 0).WithBaseDelay(time.Millisecond)
	if _, err := s.Delete(context.Background(), domain.TableLenders, domain.Eq{Column: "id", Value: "l1"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if inner.calls["delete"] != 1 {
		t.Fatalf("permanent error retried: %d calls", inner.calls["delete"])
	}

	inner = &flakyStore{n: 1, err: transient}
	s = retry.NewStore(inner, 3, 0).WithBaseDelay(time.Millisecond)
	if _, err := s.Insert(context.Background(), domain.TableLenders, domain.Row{"name": "x"}); err == nil {
		t.Fatalf("insert should surface the first failure")
	}
	if inner.calls["insert"] != 1 {
		t.Fatalf("insert retried: %d calls", inner.calls["insert"])
	}
}

func TestStore_StopsOnCancelledContext(t *testing.T) {
	inner := &flakyStore{n: 5, err: transient}
	s := retry.NewStore(inner, 5, 0).WithBaseDelay(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _ = s.Select(ctx, domain.TableLenders, domain.Query{})
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("retry loop ignored cancellation")
	}
}

func TestBackoffAndAfter(t *testing.T) {
	for i := 0; i < 3; i++ {
		base := time.Duration(1<<i) * 10 * time.Millisecond
		d := retry.Backoff(i, 10*time.Millisecond)
		if d < base || d > base+base/2 {
			t.Fatalf("Backoff(%d) = %v, want within [%v, %v]", i, d, base, base+base/2)
		}
	}

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"3"}}}
	if got := retry.After(resp); got != 3*time.Second {
		t.Fatalf("After = %v", got)
	}
	resp.Header.Set("Retry-After", "soon")
	if got := retry.After(resp); got != 0 {
		t.Fatalf("After(invalid) = %v", got)
	}
}
