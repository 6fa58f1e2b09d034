package postgres

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"lender_directory/internal/domain"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func ident(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("postgres: bad identifier %q", name)
	}
	return `"` + name + `"`, nil
}

func knownTable(name string) (string, error) {
	for _, t := range domain.Tables {
		if t == name {
			return ident(name)
		}
	}
	return "", fmt.Errorf("postgres: unknown table %q", name)
}

// placeholders hands out $1, $2, ... in order.
type placeholders struct {
	args []any
}

func (p *placeholders) add(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

func (p *placeholders) where(where []domain.Eq) (string, error) {
	if len(where) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(where))
	for _, w := range where {
		col, err := ident(w.Column)
		if err != nil {
			return "", err
		}
		parts = append(parts, col+" = "+p.add(w.Value))
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func buildSelect(table string, q domain.Query) (string, []any, error) {
	tbl, err := knownTable(table)
	if err != nil {
		return "", nil, err
	}
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, 0, len(q.Columns))
		for _, c := range q.Columns {
			qc, err := ident(c)
			if err != nil {
				return "", nil, err
			}
			quoted = append(quoted, qc)
		}
		cols = strings.Join(quoted, ", ")
	}

	var p placeholders
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, tbl)
	where, err := p.where(q.Where)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(where)

	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			col, err := ident(o.Column)
			if err != nil {
				return "", nil, err
			}
			dir, nulls := "ASC", "NULLS LAST"
			if o.Desc {
				dir = "DESC"
			}
			if o.NullsFirst {
				nulls = "NULLS FIRST"
			}
			terms = append(terms, fmt.Sprintf("%s %s %s", col, dir, nulls))
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), p.args, nil
}

func buildInsert(table string, row domain.Row) (string, []any, error) {
	tbl, err := knownTable(table)
	if err != nil {
		return "", nil, err
	}
	keys := make([]string, 0, len(row))
	for k, v := range row {
		// empty ids fall back to the column default
		if k == "id" && (v == nil || v == "") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", tbl), nil, nil
	}
	var p placeholders
	cols := make([]string, 0, len(keys))
	marks := make([]string, 0, len(keys))
	for _, k := range keys {
		col, err := ident(k)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, col)
		marks = append(marks, p.add(row[k]))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		tbl, strings.Join(cols, ", "), strings.Join(marks, ", ")), p.args, nil
}

func buildUpdate(table, id string, patch domain.Row) (string, []any, error) {
	tbl, err := knownTable(table)
	if err != nil {
		return "", nil, err
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if k != "id" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("postgres: empty update on %s: %w", table, domain.ErrValidation)
	}
	sort.Strings(keys)

	var p placeholders
	sets := make([]string, 0, len(keys))
	for _, k := range keys {
		col, err := ident(k)
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, col+" = "+p.add(patch[k]))
	}
	return fmt.Sprintf(`UPDATE %s SET %s WHERE "id" = %s`, tbl, strings.Join(sets, ", "), p.add(id)), p.args, nil
}

func buildDelete(table string, where []domain.Eq) (string, []any, error) {
	tbl, err := knownTable(table)
	if err != nil {
		return "", nil, err
	}
	if len(where) == 0 {
		return "", nil, fmt.Errorf("postgres: refusing unconditional delete on %s", table)
	}
	var p placeholders
	clause, err := p.where(where)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + tbl + clause, p.args, nil
}
