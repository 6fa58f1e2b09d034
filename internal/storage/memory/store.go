// Package memory is an in-process RecordStore and BlobStore. It backs
// STORE_DRIVER=memory for local runs and the app-level tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lender_directory/internal/domain"
)

// unique lists column sets that must be unique per table.
var unique = map[string][][]string{
	domain.TableUsers:     {{"username"}},
	domain.TableFavorites: {{"user_id", "lender_id"}},
}

// defaults are filled on insert when the row leaves them out.
var timestamped = map[string][]string{
	domain.TableLenders:        {"created_at", "updated_at"},
	domain.TableCriteriaSheets: {"upload_date"},
	domain.TableUsers:          {"created_at"},
	domain.TableFavorites:      {"created_at"},
}

type Store struct {
	now func() time.Time

	mu     sync.RWMutex
	tables map[string][]domain.Row
}

func New() *Store {
	s := &Store{now: func() time.Time { return time.Now().UTC() }, tables: map[string][]domain.Row{}}
	for _, t := range domain.Tables {
		s.tables[t] = nil
	}
	return s
}

// WithClock makes store-assigned timestamps deterministic.
func (s *Store) WithClock(c domain.Clock) *Store {
	s.now = c.Now
	return s
}

func (s *Store) table(name string) error {
	if _, ok := s.tables[name]; !ok {
		return fmt.Errorf("memory: unknown table %q", name)
	}
	return nil
}

func (s *Store) Select(ctx context.Context, table string, q domain.Query) ([]domain.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.table(table); err != nil {
		return nil, err
	}

	// order and limit on full rows; sort columns need not be selected
	var hits []domain.Row
	for _, row := range s.tables[table] {
		if matches(row, q.Where) {
			hits = append(hits, row)
		}
	}

	if len(q.Order) > 0 {
		sort.SliceStable(hits, func(i, j int) bool {
			for _, o := range q.Order {
				c := compareNullable(hits[i][o.Column], hits[j][o.Column], o)
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
	}
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]domain.Row, 0, len(hits))
	for _, row := range hits {
		out = append(out, project(row, q.Columns))
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, row domain.Row) (domain.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table(table); err != nil {
		return nil, err
	}

	stored := cloneRow(row)
	if id, _ := stored["id"].(string); id == "" {
		stored["id"] = uuid.NewString()
	}
	now := s.now()
	for _, col := range timestamped[table] {
		if stored[col] == nil {
			stored[col] = now
		}
	}

	for _, existing := range s.tables[table] {
		if existing["id"] == stored["id"] {
			return nil, fmt.Errorf("%s id %v: %w", table, stored["id"], domain.ErrConstraint)
		}
		for _, cols := range unique[table] {
			if sameOn(existing, stored, cols) {
				return nil, fmt.Errorf("%s %s: %w", table, strings.Join(cols, ","), domain.ErrConstraint)
			}
		}
	}

	s.tables[table] = append(s.tables[table], stored)
	return cloneRow(stored), nil
}

func (s *Store) Update(ctx context.Context, table, id string, patch domain.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table(table); err != nil {
		return err
	}
	for i, row := range s.tables[table] {
		if row["id"] != id {
			continue
		}
		next := cloneRow(row)
		for k, v := range patch {
			if k == "id" {
				continue
			}
			next[k] = cloneValue(v)
		}
		for j, other := range s.tables[table] {
			if j == i {
				continue
			}
			for _, cols := range unique[table] {
				if sameOn(other, next, cols) {
					return fmt.Errorf("%s %s: %w", table, strings.Join(cols, ","), domain.ErrConstraint)
				}
			}
		}
		s.tables[table][i] = next
		return nil
	}
	return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
}

func (s *Store) Delete(ctx context.Context, table string, where ...domain.Eq) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table(table); err != nil {
		return 0, err
	}
	if len(where) == 0 {
		return 0, fmt.Errorf("memory: refusing unconditional delete on %s", table)
	}
	kept := s.tables[table][:0:0]
	var n int64
	for _, row := range s.tables[table] {
		if matches(row, where) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return n, nil
}

// Len reports the number of rows in table.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

/********** helpers **********/

func matches(row domain.Row, where []domain.Eq) bool {
	for _, w := range where {
		if compare(row[w.Column], w.Value) != 0 || row[w.Column] == nil {
			return false
		}
	}
	return true
}

func sameOn(a, b domain.Row, cols []string) bool {
	for _, c := range cols {
		if a[c] == nil || compare(a[c], b[c]) != 0 {
			return false
		}
	}
	return true
}

func project(row domain.Row, cols []string) domain.Row {
	if len(cols) == 0 {
		return cloneRow(row)
	}
	out := make(domain.Row, len(cols))
	for _, c := range cols {
		if v, ok := row[c]; ok {
			out[c] = cloneValue(v)
		}
	}
	return out
}

func cloneRow(row domain.Row) domain.Row {
	out := make(domain.Row, len(row))
	for k, v := range row {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string{}, t...)
	case []byte:
		return append([]byte{}, t...)
	}
	return v
}

// compareNullable orders nils last unless the order asks otherwise.
func compareNullable(a, b any, o domain.Order) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if o.NullsFirst {
			return -1
		}
		return 1
	case b == nil:
		if o.NullsFirst {
			return 1
		}
		return -1
	}
	c := compare(a, b)
	if o.Desc {
		return -c
	}
	return c
}

func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	case float64:
		y, _ := toFloat(b)
		return cmpFloat(x, y)
	case int, int64:
		xf, _ := toFloat(x)
		yf, _ := toFloat(b)
		return cmpFloat(xf, yf)
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	}
	if fmt.Sprint(a) == fmt.Sprint(b) {
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
