package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"lender_directory/internal/adapters/observability"
	"lender_directory/internal/domain"
)

// Store decorates a RecordStore with rate limiting, retries of transient
// failures and per-call metrics. Insert is attempted once: a lost reply
// could otherwise create the row twice.
type Store struct {
	next     domain.RecordStore
	attempts int
	base     time.Duration
	rl       *rate.Limiter
}

// NewStore retries up to attempts times in total; rps <= 0 disables limiting.
func NewStore(next domain.RecordStore, attempts int, rps int) *Store {
	if attempts <= 0 {
		attempts = 3
	}
	s := &Store{next: next, attempts: attempts, base: 200 * time.Millisecond}
	if rps > 0 {
		s.rl = rate.NewLimiter(rate.Limit(rps), rps)
	}
	return s
}

// WithBaseDelay shortens the backoff (tests).
func (s *Store) WithBaseDelay(d time.Duration) *Store {
	s.base = d
	return s
}

func (s *Store) do(ctx context.Context, table, op string, retry bool, fn func() error) error {
	start := time.Now()
	var err error
	for i := 0; i < s.attempts; i++ {
		if s.rl != nil {
			if werr := s.rl.Wait(ctx); werr != nil {
				err = werr
				break
			}
		}
		err = fn()
		if err == nil || !retry || !domain.Retryable(err) || i == s.attempts-1 {
			break
		}
		observability.ObserveRetry(table, op)
		log.Debug().Err(err).Str("table", table).Str("op", op).Int("attempt", i+1).Msg("retrying store call")
		if !Sleep(ctx, Backoff(i, s.base)) {
			break
		}
	}
	observability.ObserveStore(table, op, err, time.Since(start))
	return err
}

func (s *Store) Select(ctx context.Context, table string, q domain.Query) ([]domain.Row, error) {
	var rows []domain.Row
	err := s.do(ctx, table, "select", true, func() error {
		var err error
		rows, err = s.next.Select(ctx, table, q)
		return err
	})
	return rows, err
}

func (s *Store) Insert(ctx context.Context, table string, row domain.Row) (domain.Row, error) {
	var out domain.Row
	err := s.do(ctx, table, "insert", false, func() error {
		var err error
		out, err = s.next.Insert(ctx, table, row)
		return err
	})
	return out, err
}

func (s *Store) Update(ctx context.Context, table, id string, patch domain.Row) error {
	return s.do(ctx, table, "update", true, func() error {
		return s.next.Update(ctx, table, id, patch)
	})
}

func (s *Store) Delete(ctx context.Context, table string, where ...domain.Eq) (int64, error) {
	var n int64
	err := s.do(ctx, table, "delete", true, func() error {
		var err error
		n, err = s.next.Delete(ctx, table, where...)
		return err
	})
	return n, err
}
