package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lender_directory/internal/domain"
)

const returnRows = "return=representation"

// Select issues GET /{table}?select=..&col=eq.v&order=..&limit=n.
func (c *Client) Select(ctx context.Context, table string, q domain.Query) ([]domain.Row, error) {
	v := url.Values{}
	if len(q.Columns) > 0 {
		v.Set("select", strings.Join(q.Columns, ","))
	}
	addFilters(v, q.Where)
	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir, nulls := "asc", "nullslast"
			if o.Desc {
				dir = "desc"
			}
			if o.NullsFirst {
				nulls = "nullsfirst"
			}
			terms = append(terms, o.Column+"."+dir+"."+nulls)
		}
		v.Set("order", strings.Join(terms, ","))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []domain.Row
	if err := c.do(ctx, request{method: http.MethodGet, table: table, query: v}, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	return rows, nil
}

// Insert posts one row and returns the stored representation.
func (c *Client) Insert(ctx context.Context, table string, row domain.Row) (domain.Row, error) {
	body := make(domain.Row, len(row))
	for k, val := range row {
		if k == "id" && (val == nil || val == "") {
			continue
		}
		body[k] = encode(val)
	}
	var rows []domain.Row
	if err := c.do(ctx, request{method: http.MethodPost, table: table, body: body, prefer: returnRows}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s returned nothing", table)
	}
	return rows[0], nil
}

// Update patches the row with id; an empty representation means no match.
func (c *Client) Update(ctx context.Context, table, id string, patch domain.Row) error {
	body := make(domain.Row, len(patch))
	for k, val := range patch {
		if k != "id" {
			body[k] = encode(val)
		}
	}
	v := url.Values{}
	addFilters(v, []domain.Eq{{Column: "id", Value: id}})
	v.Set("select", "id")

	var rows []domain.Row
	if err := c.do(ctx, request{method: http.MethodPatch, table: table, query: v, body: body, prefer: returnRows}, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, table string, where ...domain.Eq) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("rest: refusing unconditional delete on %s", table)
	}
	v := url.Values{}
	addFilters(v, where)
	v.Set("select", "id")

	var rows []domain.Row
	if err := c.do(ctx, request{method: http.MethodDelete, table: table, query: v, prefer: returnRows}, &rows); err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func addFilters(v url.Values, where []domain.Eq) {
	for _, w := range where {
		v.Add(w.Column, "eq."+literal(w.Value))
	}
}

func literal(val any) string {
	switch t := val.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(val)
}

func encode(val any) any {
	if t, ok := val.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return val
}
