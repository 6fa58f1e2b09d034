package importer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"lender_directory/internal/domain"
)

// Creator is the part of the lender repository the importer needs.
type Creator interface {
	Snapshot() []domain.Lender
	Create(ctx context.Context, in domain.LenderInput) (domain.Lender, error)
}

type Result struct {
	Created int
	Partial int // created, but some sheets did not attach
	Skipped int // a lender with the same name already exists
	Failed  int
}

// Run creates every input with at most workers concurrent creates. Names
// already present (case-insensitive) are skipped unless force is set.
func Run(ctx context.Context, repo Creator, inputs []domain.LenderInput, workers int, force bool) Result {
	if workers <= 0 {
		workers = 1
	}
	existing := map[string]bool{}
	if !force {
		for _, l := range repo.Snapshot() {
			existing[strings.ToLower(l.Name)] = true
		}
	}

	var (
		res Result
		mu  sync.Mutex
		wg  sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(workers))

	for _, in := range inputs {
		key := strings.ToLower(strings.TrimSpace(in.Name))
		if existing[key] {
			res.Skipped++
			log.Info().Str("lender", in.Name).Msg("already present, skipped")
			continue
		}
		existing[key] = true

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			res.Failed++
			continue
		}
		wg.Add(1)
		go func(in domain.LenderInput) {
			defer wg.Done()
			defer sem.Release(1)

			l, err := repo.Create(ctx, in)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Created++
				log.Info().Str("lender", l.Name).Str("id", l.ID).Int("sheets", len(l.CriteriaSheets)).Msg("import ok")
			case errors.Is(err, domain.ErrPartialFailure) && l.ID != "":
				res.Partial++
				log.Warn().Err(err).Str("lender", l.Name).Str("id", l.ID).Msg("imported without some sheets")
			default:
				res.Failed++
				log.Warn().Err(err).Str("lender", in.Name).Msg("import failed")
			}
		}(in)
	}

	wg.Wait()
	return res
}
