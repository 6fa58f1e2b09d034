package mysql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"lender_directory/internal/domain"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func ident(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", fmt.Errorf("mysql: bad identifier %q", name)
	}
	return "`" + name + "`", nil
}

func knownTable(name string) (string, error) {
	for _, t := range domain.Tables {
		if t == name {
			return ident(name)
		}
	}
	return "", fmt.Errorf("mysql: unknown table %q", name)
}

// arg converts a row value into something the driver accepts. List columns
// are stored as JSON documents.
func arg(v any) (any, error) {
	switch t := v.(type) {
	case []string:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return t.UTC(), nil
	}
	return v, nil
}

func sortedKeys(row domain.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func whereClause(where []domain.Eq) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	for _, w := range where {
		col, err := ident(w.Column)
		if err != nil {
			return "", nil, err
		}
		a, err := arg(w.Value)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, col+" = ?")
		args = append(args, a)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
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

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, tbl)
	where, args, err := whereClause(q.Where)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(where)

	if len(q.Order) > 0 {
		terms := make([]string, 0, len(q.Order)*2)
		for _, o := range q.Order {
			col, err := ident(o.Column)
			if err != nil {
				return "", nil, err
			}
			// MySQL has no NULLS FIRST/LAST; order on the null test first.
			nulls := "ASC"
			if o.NullsFirst {
				nulls = "DESC"
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms = append(terms, fmt.Sprintf("%s IS NULL %s", col, nulls), col+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args, nil
}

func buildInsert(table string, row domain.Row) (string, []any, error) {
	tbl, err := knownTable(table)
	if err != nil {
		return "", nil, err
	}
	keys := sortedKeys(row)
	cols := make([]string, 0, len(keys))
	marks := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		col, err := ident(k)
		if err != nil {
			return "", nil, err
		}
		a, err := arg(row[k])
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, col)
		marks = append(marks, "?")
		args = append(args, a)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", tbl, strings.Join(cols, ", "), strings.Join(marks, ", ")), args, nil
}

func buildUpdate(table, id string, patch domain.Row) (string, []any, error) {
	tbl, err := knownTable(table)
	if err != nil {
		return "", nil, err
	}
	keys := sortedKeys(patch)
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		if k == "id" {
			continue
		}
		col, err := ident(k)
		if err != nil {
			return "", nil, err
		}
		a, err := arg(patch[k])
		if err != nil {
			return "", nil, err
		}
		sets = append(sets, col+" = ?")
		args = append(args, a)
	}
	if len(sets) == 0 {
		return "", nil, fmt.Errorf("mysql: empty update on %s: %w", table, domain.ErrValidation)
	}
	args = append(args, id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE `id` = ?", tbl, strings.Join(sets, ", ")), args, nil
}

func buildDelete(table string, where []domain.Eq) (string, []any, error) {
	tbl, err := knownTable(table)
	if err != nil {
		return "", nil, err
	}
	if len(where) == 0 {
		return "", nil, fmt.Errorf("mysql: refusing unconditional delete on %s", table)
	}
	clause, args, err := whereClause(where)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + tbl + clause, args, nil
}
