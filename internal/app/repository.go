package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"lender_directory/internal/domain"
)

type RepoConfig struct {
	// InterestTreatments is the recognized list; empty disables the check.
	InterestTreatments []string
	// FetchConcurrency bounds per-lender sheet fetches and document uploads.
	FetchConcurrency int
	IDs              domain.IDGenerator
	Clock            domain.Clock
}

// LenderRepository owns the in-memory lender list. Every mutation resolves
// by re-reading the store, never by patching the list optimistically.
type LenderRepository struct {
	store domain.RecordStore
	blobs domain.BlobStore
	rep   domain.Reporter
	cfg   RepoConfig
	docs  *AttachmentManager

	// writeMu serialises mutations end to end; mu guards lenders/version.
	writeMu sync.Mutex
	mu      sync.RWMutex
	lenders []domain.Lender
	version uint64
}

func NewLenderRepository(store domain.RecordStore, blobs domain.BlobStore, rep domain.Reporter, cfg RepoConfig) *LenderRepository {
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}
	if cfg.IDs == nil {
		cfg.IDs = UUIDs{}
	}
	if cfg.Clock == nil {
		cfg.Clock = domain.SystemClock{}
	}
	if rep == nil {
		rep = nopReporter{}
	}
	r := &LenderRepository{store: store, blobs: blobs, rep: rep, cfg: cfg, lenders: []domain.Lender{}}
	r.docs = &AttachmentManager{repo: r}
	return r
}

// Attachments returns the document manager bound to this repository.
func (r *LenderRepository) Attachments() *AttachmentManager { return r.docs }

/********** reads **********/

// Snapshot returns a deep copy of the current list in name order.
func (r *LenderRepository) Snapshot() []domain.Lender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Lender, len(r.lenders))
	for i, l := range r.lenders {
		out[i] = l.Clone()
	}
	return out
}

// GetByID is a pure read against the cached list.
func (r *LenderRepository) GetByID(id string) (domain.Lender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.lenders {
		if l.ID == id {
			return l.Clone(), true
		}
	}
	return domain.Lender{}, false
}

// Version increases every time the cached list changes.
func (r *LenderRepository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Filter runs the filter engine over the current snapshot.
func (r *LenderRepository) Filter(opts domain.FilterOptions) []domain.Lender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Filter(r.lenders, opts)
}

/********** list / refresh **********/

// ListAll re-reads every lender and its sheets from the store and replaces
// the cached list. On error the cached list is left as it was.
func (r *LenderRepository) ListAll(ctx context.Context) ([]domain.Lender, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return r.Snapshot(), nil
}

func (r *LenderRepository) refreshLocked(ctx context.Context) error {
	rows, err := r.store.Select(ctx, domain.TableLenders, domain.Query{
		Order: []domain.Order{{Column: "name"}},
	})
	if err != nil {
		return fmt.Errorf("list lenders: %w", err)
	}

	list := make([]domain.Lender, 0, len(rows))
	for _, row := range rows {
		l, err := lenderFromRow(row)
		if l.ID == "" {
			r.rep.ReportPartial("list.map", "", err)
			continue
		}
		if err != nil {
			r.rep.ReportPartial("list.map", l.ID, err)
		}
		if verr := r.validate(l); verr != nil {
			r.rep.ReportPartial("list.invalid", l.ID, verr)
		}
		list = append(list, l)
	}

	if err := r.fillSheets(ctx, list); err != nil {
		return err
	}

	sortByName(list, false)
	r.replace(list)
	return nil
}

// fillSheets loads every lender's sheets concurrently. A failed fetch leaves
// that lender with no sheets and is reported, not returned.
func (r *LenderRepository) fillSheets(ctx context.Context, list []domain.Lender) error {
	sem := semaphore.NewWeighted(int64(r.cfg.FetchConcurrency))
	var wg sync.WaitGroup

	for i := range list {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return fmt.Errorf("list sheets: %w", err)
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)

			sheets, err := r.fetchSheets(ctx, list[i].ID)
			if err != nil {
				r.rep.ReportPartial("list.sheets", list[i].ID, err)
				sheets = []domain.CriteriaSheet{}
			}
			list[i].CriteriaSheets = sheets
		}(i)
	}

	wg.Wait()
	return nil
}

func (r *LenderRepository) fetchSheets(ctx context.Context, lenderID string) ([]domain.CriteriaSheet, error) {
	rows, err := r.store.Select(ctx, domain.TableCriteriaSheets, domain.Query{
		Where: []domain.Eq{{Column: "lender_id", Value: lenderID}},
	})
	if err != nil {
		return nil, fmt.Errorf("sheets of %s: %w", lenderID, err)
	}
	return sheetsFromRows(rows), nil
}

// exists asks the store, not the cached list, whether the lender is there.
func (r *LenderRepository) exists(ctx context.Context, id string) error {
	rows, err := r.store.Select(ctx, domain.TableLenders, domain.Query{
		Columns: []string{"id"},
		Where:   []domain.Eq{{Column: "id", Value: id}},
		Limit:   1,
	})
	if err != nil {
		return fmt.Errorf("lender %s: %w", id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("lender %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// fetchOne reads exactly one lender plus its sheets.
func (r *LenderRepository) fetchOne(ctx context.Context, id string) (domain.Lender, error) {
	rows, err := r.store.Select(ctx, domain.TableLenders, domain.Query{
		Where: []domain.Eq{{Column: "id", Value: id}},
		Limit: 1,
	})
	if err != nil {
		return domain.Lender{}, fmt.Errorf("get lender %s: %w", id, err)
	}
	if len(rows) == 0 {
		return domain.Lender{}, fmt.Errorf("lender %s: %w", id, domain.ErrNotFound)
	}
	l, err := lenderFromRow(rows[0])
	if l.ID == "" {
		return domain.Lender{}, err
	}
	if err != nil {
		r.rep.ReportPartial("get.map", id, err)
	}
	sheets, err := r.fetchSheets(ctx, id)
	if err != nil {
		return domain.Lender{}, err
	}
	l.CriteriaSheets = sheets
	return l, nil
}

/********** create **********/

// Create inserts the lender, uploads its documents and refreshes the list.
// When some documents fail the new lender is still returned, together with
// an error wrapping domain.ErrPartialFailure.
func (r *LenderRepository) Create(ctx context.Context, in domain.LenderInput) (domain.Lender, error) {
	l := in.Lender()
	if err := r.validate(l); err != nil {
		return domain.Lender{}, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	inserted, err := r.store.Insert(ctx, domain.TableLenders, lenderToRow(l))
	if err != nil {
		return domain.Lender{}, fmt.Errorf("insert lender: %w", err)
	}
	id, _ := asString(inserted["id"])
	if id == "" {
		return domain.Lender{}, fmt.Errorf("insert lender: store returned no id: %w", domain.ErrUnavailable)
	}

	failed := r.docs.uploadAll(ctx, id, in.Documents)

	if err := r.refreshLocked(ctx); err != nil {
		// The row exists; fall back to splicing just this lender in.
		r.rep.ReportPartial("create.refresh", id, err)
		one, ferr := r.fetchOne(ctx, id)
		if ferr != nil {
			return domain.Lender{}, fmt.Errorf("%w: lender %s created but not re-read: %w", domain.ErrPartialFailure, id, ferr)
		}
		r.splice(one)
	}

	created, ok := r.GetByID(id)
	if !ok {
		return domain.Lender{}, fmt.Errorf("%w: lender %s created but missing after refresh", domain.ErrPartialFailure, id)
	}
	if len(failed) > 0 {
		return created, fmt.Errorf("%w: %d of %d documents not attached to %s: %w",
			domain.ErrPartialFailure, len(failed), countAttachable(in.Documents), id, errors.Join(failed...))
	}
	return created, nil
}

/********** update **********/

// Update applies a sparse patch, attaches any new documents and splices the
// re-read lender into the list.
func (r *LenderRepository) Update(ctx context.Context, id string, p domain.LenderPatch) (domain.Lender, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current, err := r.fetchOne(ctx, id)
	if err != nil {
		return domain.Lender{}, err
	}
	if err := r.validate(p.Apply(current)); err != nil {
		return domain.Lender{}, err
	}

	if err := r.store.Update(ctx, domain.TableLenders, id, patchToRow(p, r.cfg.Clock.Now())); err != nil {
		return domain.Lender{}, fmt.Errorf("update lender %s: %w", id, err)
	}

	failed := r.docs.uploadAll(ctx, id, p.Documents)

	fresh, err := r.fetchOne(ctx, id)
	if err != nil {
		r.rep.ReportPartial("update.refetch", id, err)
		return domain.Lender{}, fmt.Errorf("%w: lender %s updated but not re-read: %w", domain.ErrPartialFailure, id, err)
	}
	r.splice(fresh)

	if len(failed) > 0 {
		return fresh.Clone(), fmt.Errorf("%w: %d of %d documents not attached to %s: %w",
			domain.ErrPartialFailure, len(failed), countAttachable(p.Documents), id, errors.Join(failed...))
	}
	return fresh.Clone(), nil
}

/********** delete **********/

// Delete removes the lender's blobs, its sheet and favourite rows, then the
// lender row. A failure once rows are gone resyncs the cached entry with the
// store; the lender only leaves the list when its row is deleted.
func (r *LenderRepository) Delete(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.exists(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	sheets, err := r.fetchSheets(ctx, id)
	if err != nil {
		return fmt.Errorf("delete lender %s: %w", id, err)
	}
	// Unlike Detach, a blob that cannot be removed aborts the delete: the
	// sheet rows are the only record of it. A missing blob is not a failure.
	for _, s := range sheets {
		key := blobKey(s.URL)
		if key == "" {
			continue
		}
		if err := r.blobs.Delete(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete lender %s: blob %s: %w", id, key, err)
		}
	}

	if _, err := r.store.Delete(ctx, domain.TableCriteriaSheets, domain.Eq{Column: "lender_id", Value: id}); err != nil {
		r.resync(ctx, id, "delete.resync")
		return fmt.Errorf("delete sheets of %s: %w", id, err)
	}
	if _, err := r.store.Delete(ctx, domain.TableFavorites, domain.Eq{Column: "lender_id", Value: id}); err != nil {
		r.resync(ctx, id, "delete.resync")
		return fmt.Errorf("delete favourites of %s: %w", id, err)
	}
	n, err := r.store.Delete(ctx, domain.TableLenders, domain.Eq{Column: "id", Value: id})
	if err != nil {
		r.resync(ctx, id, "delete.resync")
		return fmt.Errorf("delete lender %s: %w", id, err)
	}
	if n == 0 {
		r.remove(id)
		return fmt.Errorf("lender %s: %w", id, domain.ErrNotFound)
	}

	r.remove(id)
	return nil
}

// resync re-reads one lender after a write stopped part way, so the cached
// entry matches what the store holds. If the re-read fails too, the cached
// sheets are cleared, as their rows may already be gone.
func (r *LenderRepository) resync(ctx context.Context, id, op string) {
	l, err := r.fetchOne(ctx, id)
	switch {
	case err == nil:
		r.splice(l)
	case errors.Is(err, domain.ErrNotFound):
		r.remove(id)
	default:
		r.rep.ReportPartial(op, id, err)
		r.setSheets(id, nil)
	}
}

/********** validation **********/

func (r *LenderRepository) validate(l domain.Lender) error {
	var problems []string
	if strings.TrimSpace(l.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(l.LoanTypes) == 0 {
		problems = append(problems, "at least one loan type is required")
	}
	for _, t := range l.LoanTypes {
		if !t.Valid() {
			problems = append(problems, fmt.Sprintf("unknown loan type %q", t))
		}
	}
	if len(l.CoveredLocation) == 0 {
		problems = append(problems, "at least one covered location is required")
	}
	if len(r.cfg.InterestTreatments) > 0 && !containsString(r.cfg.InterestTreatments, l.InterestTreatment) {
		problems = append(problems, fmt.Sprintf("unrecognized interest treatment %q", l.InterestTreatment))
	}
	for _, rg := range []struct {
		name string
		r    domain.Range
	}{
		{"rate", l.Rate},
		{"loan", l.Loan},
		{"term", l.Term},
		{"age", l.Age},
		{"loan processing time", l.LoanProcessingTime},
		{"decision time", l.DecisionTime},
	} {
		if rg.r.Min > rg.r.Max {
			problems = append(problems, rg.name+": min exceeds max")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

/********** list surgery (callers hold writeMu) **********/

func (r *LenderRepository) replace(list []domain.Lender) {
	r.mu.Lock()
	r.lenders = list
	r.version++
	r.mu.Unlock()
}

// splice swaps in l (or adds it) and restores name order.
func (r *LenderRepository) splice(l domain.Lender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]domain.Lender, 0, len(r.lenders)+1)
	found := false
	for _, cur := range r.lenders {
		if cur.ID == l.ID {
			next = append(next, l.Clone())
			found = true
			continue
		}
		next = append(next, cur)
	}
	if !found {
		next = append(next, l.Clone())
	}
	sortByName(next, false)
	r.lenders = next
	r.version++
}

func (r *LenderRepository) setSheets(lenderID string, sheets []domain.CriteriaSheet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.lenders {
		if r.lenders[i].ID == lenderID {
			r.lenders[i].CriteriaSheets = append([]domain.CriteriaSheet{}, sheets...)
			r.version++
			return
		}
	}
}

func (r *LenderRepository) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]domain.Lender, 0, len(r.lenders))
	for _, l := range r.lenders {
		if l.ID != id {
			next = append(next, l)
		}
	}
	r.lenders = next
	r.version++
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
