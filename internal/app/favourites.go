package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"lender_directory/internal/domain"
)

// Favourites is one user's set of favourited lender ids, kept in step with
// the favorites collection.
type Favourites struct {
	store  domain.RecordStore
	userID string

	toggleMu sync.Mutex
	mu       sync.RWMutex
	ids      map[string]struct{}
}

func NewFavourites(store domain.RecordStore, userID string) *Favourites {
	return &Favourites{store: store, userID: userID, ids: map[string]struct{}{}}
}

// Load replaces the local set with what the store holds.
func (f *Favourites) Load(ctx context.Context) error {
	rows, err := f.store.Select(ctx, domain.TableFavorites, domain.Query{
		Columns: []string{"lender_id"},
		Where:   []domain.Eq{{Column: "user_id", Value: f.userID}},
	})
	if err != nil {
		return fmt.Errorf("favourites of %s: %w", f.userID, err)
	}
	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if id, _ := asString(row["lender_id"]); id != "" {
			ids[id] = struct{}{}
		}
	}
	f.mu.Lock()
	f.ids = ids
	f.mu.Unlock()
	return nil
}

// Toggle flips membership of lenderID and returns the new membership. The
// local set only changes once the store call succeeded.
func (f *Favourites) Toggle(ctx context.Context, lenderID string) (bool, error) {
	f.toggleMu.Lock()
	defer f.toggleMu.Unlock()

	if f.IsFavourite(lenderID) {
		if _, err := f.store.Delete(ctx, domain.TableFavorites,
			domain.Eq{Column: "user_id", Value: f.userID},
			domain.Eq{Column: "lender_id", Value: lenderID},
		); err != nil {
			return true, fmt.Errorf("remove favourite %s: %w", lenderID, err)
		}
		f.mu.Lock()
		delete(f.ids, lenderID)
		f.mu.Unlock()
		return false, nil
	}

	_, err := f.store.Insert(ctx, domain.TableFavorites, domain.Row{
		"user_id":   f.userID,
		"lender_id": lenderID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConstraint) {
			// Another session got there first, or the lender is gone: ask the store.
			if lerr := f.Load(ctx); lerr == nil && f.IsFavourite(lenderID) {
				return true, nil
			}
		}
		return false, fmt.Errorf("add favourite %s: %w", lenderID, err)
	}
	f.mu.Lock()
	f.ids[lenderID] = struct{}{}
	f.mu.Unlock()
	return true, nil
}

func (f *Favourites) IsFavourite(lenderID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ids[lenderID]
	return ok
}

// IDs returns the favourited lender ids in lexical order.
func (f *Favourites) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Lenders picks the favourited lenders out of list, keeping its order.
func (f *Favourites) Lenders(list []domain.Lender) []domain.Lender {
	out := make([]domain.Lender, 0)
	for _, l := range list {
		if f.IsFavourite(l.ID) {
			out = append(out, l)
		}
	}
	return out
}

// FavouriteSessions hands out one seeded tracker per signed-in user.
type FavouriteSessions struct {
	store domain.RecordStore

	mu     sync.Mutex
	byUser map[string]*Favourites
}

func NewFavouriteSessions(store domain.RecordStore) *FavouriteSessions {
	return &FavouriteSessions{store: store, byUser: map[string]*Favourites{}}
}

// For returns the user's tracker, seeding it from the store on first use.
func (s *FavouriteSessions) For(ctx context.Context, userID string) (*Favourites, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.byUser[userID]; ok {
		return f, nil
	}
	f := NewFavourites(s.store, userID)
	if err := f.Load(ctx); err != nil {
		return nil, err
	}
	s.byUser[userID] = f
	return f, nil
}

// Drop forgets the user's tracker (logout).
func (s *FavouriteSessions) Drop(userID string) {
	s.mu.Lock()
	delete(s.byUser, userID)
	s.mu.Unlock()
}
