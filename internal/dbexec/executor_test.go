package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T, timeout time.Duration) (*StandardExecutor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStandardExecutor(db, timeout), mock
}

func TestStandardExecutor_QueryHoldsDeadlineUntilClose(t *testing.T) {
	exec, mock := newMock(t, time.Minute)
	mock.ExpectQuery("SELECT id FROM entries").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1").AddRow("p2"))

	rows, err := exec.QueryContext(context.Background(), "SELECT id FROM entries")
	require.NoError(t, err)
	var ids []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, []string{"p1", "p2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_NilDB(t *testing.T) {
	exec := NewStandardExecutor(nil, 0)
	_, err := exec.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	_, err = exec.ExecContext(context.Background(), "DELETE FROM entries")
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.ErrorIs(t, exec.InTx(context.Background(), func(QueryExecutor) error { return nil }), sql.ErrConnDone)
}

func TestStandardExecutor_InTxCommits(t *testing.T) {
	exec, mock := newMock(t, time.Minute)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO entries").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := exec.InTx(context.Background(), func(q QueryExecutor) error {
		for range 2 {
			if _, err := q.ExecContext(context.Background(), "INSERT INTO entries VALUES (?)", "x"); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_InTxRollsBackOnError(t *testing.T) {
	exec, mock := newMock(t, 0)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO entries").WillReturnError(errors.New("duplicate"))
	mock.ExpectRollback()

	err := exec.InTx(context.Background(), func(q QueryExecutor) error {
		_, err := q.ExecContext(context.Background(), "INSERT INTO entries VALUES (?)", "x")
		return err
	})
	require.ErrorContains(t, err, "duplicate")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_InTxRollsBackOnPanic(t *testing.T) {
	exec, mock := newMock(t, 0)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "boom", func() {
		_ = exec.InTx(context.Background(), func(QueryExecutor) error { panic("boom") })
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_BeginFailure(t *testing.T) {
	exec, mock := newMock(t, 0)
	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	called := false
	err := exec.InTx(context.Background(), func(QueryExecutor) error { called = true; return nil })
	require.ErrorContains(t, err, "failed to begin transaction")
	assert.False(t, called)
}
