package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"lender_directory/internal/domain"
)

// Open parses dsn and returns a pool configured the way Repo expects:
// parsed times in UTC and matched (not changed) row counts on UPDATE.
func Open(dsn string) (*sql.DB, error) {
	cfg, err := mysqldrv.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	cfg.Loc = time.UTC
	conn, err := mysqldrv.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(conn)
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Repo is a RecordStore over MySQL tables.
type Repo struct {
	db    *sql.DB
	newID func() string
}

func New(db *sql.DB) *Repo { return &Repo{db: db, newID: uuid.NewString} }

func (r *Repo) Select(ctx context.Context, table string, q domain.Query) ([]domain.Row, error) {
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, mapErr(err)
	}
	out := []domain.Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, mapErr(err)
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// Insert assigns a uuid when the row has none and reads the row back so
// column defaults (timestamps) are visible to the caller.
func (r *Repo) Insert(ctx context.Context, table string, row domain.Row) (domain.Row, error) {
	stored := make(domain.Row, len(row)+1)
	for k, v := range row {
		stored[k] = v
	}
	id, _ := stored["id"].(string)
	if id == "" {
		id = r.newID()
		stored["id"] = id
	}
	query, args, err := buildInsert(table, stored)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, mapErr(err)
	}

	back, err := r.Select(ctx, table, domain.Query{Where: []domain.Eq{{Column: "id", Value: id}}, Limit: 1})
	if err != nil || len(back) == 0 {
		return stored, nil
	}
	return back[0], nil
}

func (r *Repo) Update(ctx context.Context, table, id string, patch domain.Row) error {
	query, args, err := buildUpdate(table, id, patch)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, domain.ErrNotFound)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, table string, where ...domain.Eq) (int64, error) {
	query, args, err := buildDelete(table, where)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

// Ping is used by the health check.
func (r *Repo) Ping(ctx context.Context) error { return mapErr(r.db.PingContext(ctx)) }

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1062, 1451, 1452: // duplicate key, foreign key parent/child
			return fmt.Errorf("%w: %v", domain.ErrConstraint, err)
		}
		return err
	}
	var ne net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldrv.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) || errors.As(err, &ne) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
