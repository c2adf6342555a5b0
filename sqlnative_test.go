package fbexec

import (
	"database/sql"
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockDB(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// itemRows returns two rows with typed column definitions.
func itemRows(mock sqlmock.Sqlmock) *sqlmock.Rows {
	return mock.NewRowsWithColumnDefinition(
		mock.NewColumn("ID").OfType("BIGINT", int64(0)),
		mock.NewColumn("PRICE").OfType("DECIMAL", "").WithPrecisionAndScale(18, 2),
		mock.NewColumn("CODE").OfType("CHAR", ""),
	).AddRow(int64(1), "12.50", "ab  ").AddRow(int64(2), "3.00", "c   ")
}

func TestConn_PrepareMode(t *testing.T) {
	db, mock := newMockDB(t)

	st, err := Open(db, Config{AutoCommit: true}).Prepare("SELECT 1")
	require.NoError(t, err)
	require.IsType(t, &AutoCommitStatement{}, st)

	st, err = Open(db).Prepare("SELECT 1")
	require.NoError(t, err)
	require.IsType(t, &Statement{}, st)

	_, err = Open(db, Config{MaxParams: 1}).Prepare("SELECT ?, ?")
	require.ErrorIs(t, err, ErrTooManyParams)

	// Preparing does not touch the database.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_Config(t *testing.T) {
	db, _ := newMockDB(t)
	c := Open(db, Config{Dialect: Postgres})
	require.Equal(t, Postgres, c.Config().Dialect)
	require.Equal(t, 65535, c.Config().MaxParams)

	ro := c.WithTxOptions(&sql.TxOptions{ReadOnly: true})
	require.Nil(t, c.txOpts)
	require.True(t, ro.txOpts.ReadOnly)
}

func TestSQL_SelectDefersCommit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT ID, PRICE, CODE FROM items WHERE kind = ? AND price > ?").
		WithArgs("x", 1).
		WillReturnRows(itemRows(mock))
	mock.ExpectCommit()

	st, err := Open(db, Config{AutoCommit: true}).Prepare("SELECT ID, PRICE, CODE FROM items WHERE kind = :kind AND price > ?")
	require.NoError(t, err)
	ac := st.(*AutoCommitStatement)

	res, err := st.Execute(1, P{"kind": "x"})
	require.NoError(t, err)
	require.Equal(t, StateDeferredCommitPending, ac.State())

	require.Equal(t, []Column{
		{Name: "ID", Native: NativeInt64, Semantic: TypeInteger},
		{Name: "PRICE", Native: NativeNumeric, Semantic: TypeDecimal},
		{Name: "CODE", Native: NativeChar, Semantic: TypeChar},
	}, res.Schema.Columns())

	rows, err := res.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0][0])
	require.Equal(t, 0, rows[0][1].(*big.Rat).Cmp(big.NewRat(25, 2)))
	require.Equal(t, "ab", rows[0][2])
	require.Equal(t, "c", rows[1][2])
	require.Equal(t, StateCommitted, ac.State())

	require.NoError(t, st.Finish())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_RowReturningKeywordsQuery(t *testing.T) {
	for _, q := range []string{"VALUES (1)", "SHOW TABLES", "EXPLAIN SELECT 1", "DESCRIBE items", "PRAGMA table_info('items')", "FROM items"} {
		t.Run(q, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectBegin()
			mock.ExpectQuery(q).WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow("a").AddRow("b"))
			mock.ExpectCommit()

			st, err := Open(db, Config{Dialect: DuckDB, AutoCommit: true}).Prepare(q)
			require.NoError(t, err)
			res, err := st.Execute()
			require.NoError(t, err)
			require.Equal(t, 1, res.Schema.Len())

			rows, err := res.Rows()
			require.NoError(t, err)
			require.Equal(t, [][]any{{"a"}, {"b"}}, rows)
			require.NoError(t, st.Finish())
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQL_RewindableCommitsBeforeReturn(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT ID, PRICE, CODE FROM items").WillReturnRows(itemRows(mock))
	mock.ExpectCommit()

	st, err := Open(db, Config{AutoCommit: true, RewindableResult: true}).Prepare("SELECT ID, PRICE, CODE FROM items")
	require.NoError(t, err)

	res, err := st.Execute()
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	// The buffered rows outlive the transaction.
	ac, ok := res.Cursor.(*ArrayCursor)
	require.True(t, ok)
	n, err := ac.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []any{int64(1), int64(2)}, drain(ac))
	require.NoError(t, ac.Rewind())
	require.True(t, ac.Next())

	require.NoError(t, res.Cursor.Close())
	require.NoError(t, st.Finish())
}

func TestSQL_ExecCommitsImmediately(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO items (id, code) VALUES (?, ?)").
		WithArgs(7, "z").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	st, err := Open(db, Config{AutoCommit: true}).Prepare("INSERT INTO items (id, code) VALUES (:id, :code)")
	require.NoError(t, err)

	res, err := st.Execute(P{"id": 7, "code": "z"})
	require.NoError(t, err)
	require.Equal(t, 0, res.Schema.Len())
	require.False(t, res.Cursor.Next())
	require.NoError(t, res.Cursor.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_DDLCommitsImmediately(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE items (id INTEGER)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	st, err := Open(db, Config{AutoCommit: true}).Prepare("CREATE TABLE items (id INTEGER)")
	require.NoError(t, err)
	_, err = st.Execute()
	require.NoError(t, err)
	require.Equal(t, StateCommitted, st.(*AutoCommitStatement).State())
	require.NoError(t, st.Finish())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_QueryErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT * FROM missing").WillReturnError(errBoom)
	mock.ExpectRollback()

	st, err := Open(db, Config{AutoCommit: true}).Prepare("SELECT * FROM missing")
	require.NoError(t, err)

	res, err := st.Execute()
	require.Nil(t, res)
	require.ErrorIs(t, err, ErrExecutionFailedAfterRollback)
	require.ErrorIs(t, err, errBoom)
	require.NoError(t, st.Finish())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_PlainStatementLeavesTxToFinish(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE items SET n = n + 1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectRollback()

	st, err := Open(db).Prepare("UPDATE items SET n = n + 1")
	require.NoError(t, err)
	_, err = st.Execute()
	require.NoError(t, err)

	// Nothing committed; closing the statement discards the work.
	require.NoError(t, st.Finish())
	require.ErrorIs(t, st.Finish(), ErrFinished)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_PlainStatementErrorUnchanged(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM items").WillReturnError(errBoom)
	mock.ExpectRollback()

	st, err := Open(db).Prepare("DELETE FROM items")
	require.NoError(t, err)
	_, err = st.Execute()
	require.Equal(t, errBoom, err)
	require.NoError(t, st.Finish())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_FinishCommitsPendingTx(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT ID, PRICE, CODE FROM items").WillReturnRows(itemRows(mock))
	mock.ExpectCommit()

	st, err := Open(db, Config{AutoCommit: true}).Prepare("SELECT ID, PRICE, CODE FROM items")
	require.NoError(t, err)
	_, err = st.Execute()
	require.NoError(t, err)

	require.NoError(t, st.Finish())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_ReusesTransactionUntilCommit(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE items SET n = ?").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE items SET n = ?").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	st, err := Open(db).Prepare("UPDATE items SET n = ?")
	require.NoError(t, err)
	_, err = st.Execute(1)
	require.NoError(t, err)
	_, err = st.Execute(2)
	require.NoError(t, err)

	tx := st.(*Statement).Native().Transaction()
	require.True(t, tx.Active())
	require.NoError(t, tx.Commit())
	require.False(t, tx.Active())
	require.ErrorIs(t, tx.Commit(), ErrTxInactive)
	require.ErrorIs(t, tx.Rollback(), ErrTxInactive)

	require.NoError(t, st.Finish())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecResult(t *testing.T) {
	r := &execResult{res: sqlmock.NewResult(0, 4)}
	n, err := r.RowsAffected()
	require.NoError(t, err)
	require.Equal(t, int64(4), n)

	_, err = r.ColumnCount()
	require.ErrorIs(t, err, ErrNotTabular)
	_, err = r.ColumnScale(0)
	require.ErrorIs(t, err, ErrNotTabular)
	require.False(t, r.Next())
	require.NoError(t, r.Close())
}
