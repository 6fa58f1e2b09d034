package mysql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lender_directory/internal/domain"
)

func newMock(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	r := New(db)
	r.newID = func() string { return "fixed-id" }
	return r, mock
}

func TestSelect_OrderNullsLastAndDecodesBytes(t *testing.T) {
	r, mock := newMock(t)
	login := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT `id`, `username`, `last_login` FROM `users` WHERE `is_admin` = ? ORDER BY `last_login` IS NULL ASC, `last_login` DESC LIMIT 5")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "last_login"}).
			AddRow([]byte("u1"), []byte("ann"), login).
			AddRow([]byte("u2"), []byte("bob"), nil))

	rows, err := r.Select(context.Background(), domain.TableUsers, domain.Query{
		Columns: []string{"id", "username", "last_login"},
		Where:   []domain.Eq{{Column: "is_admin", Value: true}},
		Order:   []domain.Order{{Column: "last_login", Desc: true}},
		Limit:   5,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ann", rows[0]["username"])
	assert.Equal(t, login, rows[0]["last_login"])
	assert.Nil(t, rows[1]["last_login"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelect_RejectsUnknownTableAndColumn(t *testing.T) {
	r, mock := newMock(t)
	_, err := r.Select(context.Background(), "loans", domain.Query{})
	assert.Error(t, err)
	_, err = r.Select(context.Background(), domain.TableLenders, domain.Query{Columns: []string{"name; DROP"}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_AssignsIDAndReadsBack(t *testing.T) {
	r, mock := newMock(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `favorites` (`id`, `lender_id`, `user_id`) VALUES (?, ?, ?)")).
		WithArgs("fixed-id", "l1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `favorites` WHERE `id` = ? LIMIT 1")).
		WithArgs("fixed-id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "lender_id", "created_at"}).
			AddRow("fixed-id", "u1", "l1", created))

	row, err := r.Insert(context.Background(), domain.TableFavorites, domain.Row{"user_id": "u1", "lender_id": "l1"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", row["id"])
	assert.Equal(t, created, row["created_at"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DuplicateIsConstraint(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec("INSERT INTO `users`").
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := r.Insert(context.Background(), domain.TableUsers, domain.Row{"id": "u1", "username": "ann"})
	assert.True(t, errors.Is(err, domain.ErrConstraint), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_EncodesListsAndReportsMissingRow(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `lenders` SET `covered_location` = ?, `name` = ? WHERE `id` = ?")).
		WithArgs(`["Wales","Scotland"]`, "Acme", "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `lenders`").
		WithArgs("Acme", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	err := r.Update(ctx, domain.TableLenders, "l1", domain.Row{"name": "Acme", "covered_location": []string{"Wales", "Scotland"}})
	require.NoError(t, err)

	err = r.Update(ctx, domain.TableLenders, "missing", domain.Row{"name": "Acme"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `favorites` WHERE `user_id` = ? AND `lender_id` = ?")).
		WithArgs("u1", "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	n, err := r.Delete(ctx, domain.TableFavorites,
		domain.Eq{Column: "user_id", Value: "u1"},
		domain.Eq{Column: "lender_id", Value: "l1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = r.Delete(ctx, domain.TableFavorites)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapErr_TransportIsUnavailable(t *testing.T) {
	err := mapErr(mysqldrv.ErrInvalidConn)
	assert.True(t, errors.Is(err, domain.ErrUnavailable))
	assert.True(t, domain.Retryable(err))
}
