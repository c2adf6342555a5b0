package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/gandaldf/fbexec"
)

func newMockDSN(t *testing.T, dsn string) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.NewWithDSN(dsn, sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock
}

func TestRun_PrintsTable(t *testing.T) {
	mock := newMockDSN(t, "fbexec_print_table")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name FROM people WHERE name = ? AND id > ?").
		WithArgs("bob", "0").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "bob").
			AddRow(int64(2), nil))
	mock.ExpectCommit()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-driver", "sqlmock",
		"-dsn", "fbexec_print_table",
		"-p", "name=bob",
		"SELECT id, name FROM people WHERE name = :name AND id > ?", "0",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	out := stdout.String()
	require.Contains(t, out, "id (default)")
	require.Contains(t, out, "bob")
	require.Contains(t, out, "NULL")
	require.Contains(t, out, "(2 rows)")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_NonTabularWithoutAutoCommit(t *testing.T) {
	mock := newMockDSN(t, "fbexec_no_autocommit")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE people SET n = 0").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-driver", "sqlmock",
		"-dsn", "fbexec_no_autocommit",
		"-autocommit=false",
		"UPDATE people SET n = 0",
	}, &stdout, &stderr)
	require.NoError(t, err)
	require.Equal(t, "OK\n", stdout.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_VerboseLogsDecisions(t *testing.T) {
	mock := newMockDSN(t, "fbexec_verbose")
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM people").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-driver", "sqlmock", "-dsn", "fbexec_verbose", "-v",
		"DELETE FROM people",
	}, &stdout, &stderr)
	require.NoError(t, err)
	require.Contains(t, stderr.String(), "transaction committed")
}

func TestRun_QueryErrorRollsBack(t *testing.T) {
	mock := newMockDSN(t, "fbexec_query_error")
	boom := errors.New("no such table")
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT * FROM missing").WillReturnError(boom)
	mock.ExpectRollback()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-driver", "sqlmock", "-dsn", "fbexec_query_error",
		"SELECT * FROM missing",
	}, &stdout, &stderr)
	require.ErrorIs(t, err, fbexec.ErrExecutionFailedAfterRollback)
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_Usage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), nil, &stdout, &stderr)
	require.ErrorIs(t, err, flag.ErrHelp)
	require.Contains(t, stderr.String(), "usage: fbexec")
}

func TestRun_UnknownDialect(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-dialect", "oracle", "SELECT 1"}, &stdout, &stderr)
	require.ErrorContains(t, err, `unknown dialect "oracle"`)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fbexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: sqlmock
dsn: memory
dialect: postgres
rewindable_result: true
autocommit: false
max_params: 10
`), 0o600))

	fc := fileConfig{Driver: "duckdb", Dialect: "duckdb"}
	require.NoError(t, loadConfig(path, &fc))
	require.Equal(t, "sqlmock", fc.Driver)
	require.Equal(t, "memory", fc.DSN)

	cfg, err := fc.config()
	require.NoError(t, err)
	require.Equal(t, fbexec.Postgres, cfg.Dialect)
	require.True(t, cfg.RewindableResult)
	require.False(t, cfg.AutoCommit)
	require.Equal(t, 10, cfg.MaxParams)
}

func TestLoadConfig_KeepsUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fbexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dsn: other\n"), 0o600))

	fc := fileConfig{Driver: "duckdb", Dialect: "duckdb"}
	require.NoError(t, loadConfig(path, &fc))
	require.Equal(t, "duckdb", fc.Driver)

	cfg, err := fc.config()
	require.NoError(t, err)
	require.Equal(t, fbexec.DuckDB, cfg.Dialect)
	require.True(t, cfg.AutoCommit)
}

func TestLoadConfig_Errors(t *testing.T) {
	var fc fileConfig
	require.Error(t, loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), &fc))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: [unterminated\n"), 0o600))
	require.ErrorContains(t, loadConfig(path, &fc), "parse ")
}

func TestRun_FlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fbexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("driver: nosuchdriver\ndialect: nosuchdialect\n"), 0o600))

	mock := newMockDSN(t, "fbexec_override")
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE people").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"-config", path,
		"-driver", "sqlmock", "-dsn", "fbexec_override", "-dialect", "firebird",
		"DROP TABLE people",
	}, &stdout, &stderr)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParams(t *testing.T) {
	p := params{}
	require.NoError(t, p.Set("a=1"))
	require.NoError(t, p.Set("b=x=y"))
	require.Equal(t, params{"a": "1", "b": "x=y"}, p)
	require.Error(t, p.Set("novalue"))
	require.Error(t, p.Set("=v"))
}

func TestFormatCell(t *testing.T) {
	require.Equal(t, "NULL", formatCell(nil))
	require.Equal(t, "3", formatCell(big.NewRat(3, 1)))
	require.Equal(t, "12.5", formatCell(big.NewRat(25, 2)))
	require.Equal(t, "abc", formatCell("abc"))
}
