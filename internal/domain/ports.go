package domain

import (
	"context"
	"time"
)

// Collections in the record store.
const (
	TableLenders        = "lenders"
	TableCriteriaSheets = "criteria_sheets"
	TableFavorites      = "favorites"
	TableUsers          = "users"
)

// Tables lists every collection an adapter must accept.
var Tables = []string{TableLenders, TableCriteriaSheets, TableFavorites, TableUsers}

// Row is one flat, snake_cased record as the store sees it.
type Row map[string]any

// Eq is an equality predicate on a column.
type Eq struct {
	Column string
	Value  any
}

type Order struct {
	Column     string
	Desc       bool
	NullsFirst bool
}

type Query struct {
	Columns []string // empty means all
	Where   []Eq
	Order   []Order
	Limit   int
}

// RecordStore is the generic CRUD capability over the remote collections.
// Adapters map "no such row" to ErrNotFound, unique violations to
// ErrConstraint and transport failures to ErrUnavailable.
type RecordStore interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	// Insert returns the stored row, including store-assigned id and timestamps.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table, id string, patch Row) error
	Delete(ctx context.Context, table string, where ...Eq) (int64, error)
}

type BlobStore interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	PublicURL(name string) string
	Delete(ctx context.Context, name string) error
}

type IDGenerator interface {
	NewID() string
}

type Clock interface {
	Now() time.Time
}

// Reporter receives failures that are isolated rather than returned.
type Reporter interface {
	ReportPartial(op, id string, err error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
