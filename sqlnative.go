package fbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Conn prepares statements on a database/sql handle. Every statement owns
// its transaction, started on first execution.
type Conn struct {
	db     *sql.DB
	config Config
	txOpts *sql.TxOptions
}

// sqlStatement implements NativeStatement over database/sql.
type sqlStatement struct {
	db     *sql.DB
	query  *Query
	tx     *sqlTx
	closed bool
}

// sqlTx implements Transaction over a lazily started *sql.Tx.
type sqlTx struct {
	db   *sql.DB
	opts *sql.TxOptions
	tx   *sql.Tx
}

// rowsResult is the NativeResult of a query.
type rowsResult struct {
	rows  *sql.Rows
	types []*sql.ColumnType
	err   error
}

// execResult is the NativeResult of a statement that yields no rows.
type execResult struct {
	res sql.Result
}

// Open returns a Conn preparing statements on db with cfg.
func Open(db *sql.DB, cfg ...Config) *Conn {
	return &Conn{db: db, config: defaultConfig(cfg...)}
}

// WithTxOptions returns a copy of c starting transactions with opts.
func (c *Conn) WithTxOptions(opts *sql.TxOptions) *Conn {
	cp := *c
	cp.txOpts = opts
	return &cp
}

// Config returns the effective configuration.
func (c *Conn) Config() Config { return c.config }

// Prepare parses query and returns an AutoCommitStatement when the
// connection is in auto-commit mode, a plain Statement otherwise.
func (c *Conn) Prepare(query string) (Executor, error) {
	q, err := ParseQuery(query, c.config)
	if err != nil {
		return nil, err
	}
	native := &sqlStatement{
		db:    c.db,
		query: q,
		tx:    &sqlTx{db: c.db, opts: c.txOpts},
	}
	st := &Statement{Base: Base{query: q, config: c.config}, native: native}
	if c.config.AutoCommit {
		return &AutoCommitStatement{Statement: st}, nil
	}
	return st, nil
}

// Execute implements NativeStatement.
func (s *sqlStatement) Execute(ctx context.Context) (NativeResult, error) {
	return s.ExecuteFor(ctx, nil)
}

// ExecuteFor implements NativeStatement. Row-returning statements are run
// with QueryContext, everything else with ExecContext.
func (s *sqlStatement) ExecuteFor(ctx context.Context, args []any) (NativeResult, error) {
	if s.closed {
		return nil, ErrFinished
	}
	tx, err := s.tx.begin(ctx)
	if err != nil {
		return nil, err
	}
	if !s.query.Type.Tabular() {
		res, err := tx.ExecContext(ctx, s.query.SQL, args...)
		if err != nil {
			return nil, err
		}
		return &execResult{res: res}, nil
	}
	rows, err := tx.QueryContext(ctx, s.query.SQL, args...)
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	return &rowsResult{rows: rows, types: types, err: err}, nil
}

// Type implements NativeStatement.
func (s *sqlStatement) Type() StatementType { return s.query.Type }

// Transaction implements NativeStatement.
func (s *sqlStatement) Transaction() Transaction { return s.tx }

// Close implements NativeStatement. A transaction left open is rolled back.
func (s *sqlStatement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx.Active() {
		return s.tx.Rollback()
	}
	return nil
}

func (t *sqlTx) begin(ctx context.Context) (*sql.Tx, error) {
	if t.tx != nil {
		return t.tx, nil
	}
	tx, err := t.db.BeginTx(ctx, t.opts)
	if err != nil {
		return nil, err
	}
	t.tx = tx
	return tx, nil
}

// Active implements Transaction.
func (t *sqlTx) Active() bool { return t.tx != nil }

// Commit implements Transaction.
func (t *sqlTx) Commit() error {
	if t.tx == nil {
		return ErrTxInactive
	}
	tx := t.tx
	t.tx = nil
	return tx.Commit()
}

// Rollback implements Transaction.
func (t *sqlTx) Rollback() error {
	if t.tx == nil {
		return ErrTxInactive
	}
	tx := t.tx
	t.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (r *rowsResult) column(i int) (*sql.ColumnType, error) {
	if r.err != nil {
		return nil, r.err
	}
	if i < 0 || i >= len(r.types) {
		return nil, fmt.Errorf("fbexec: column %d out of range (%d columns)", i, len(r.types))
	}
	return r.types[i], nil
}

// ColumnCount implements NativeResult.
func (r *rowsResult) ColumnCount() (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	return len(r.types), nil
}

// BaseType implements NativeResult.
func (r *rowsResult) BaseType(i int) (string, error) {
	ct, err := r.column(i)
	if err != nil {
		return "", err
	}
	return ct.DatabaseTypeName(), nil
}

// ColumnScale implements NativeResult. database/sql reports the number of
// fractional digits; the native scale is its negated decimal exponent.
func (r *rowsResult) ColumnScale(i int) (int, error) {
	ct, err := r.column(i)
	if err != nil {
		return 0, err
	}
	_, scale, ok := ct.DecimalSize()
	if !ok {
		return 0, ErrNoScale
	}
	return -int(scale), nil
}

// ColumnAlias implements NativeResult.
func (r *rowsResult) ColumnAlias(i int) (string, error) {
	ct, err := r.column(i)
	if err != nil {
		return "", err
	}
	return ct.Name(), nil
}

// Next implements NativeResult.
func (r *rowsResult) Next() bool { return r.rows.Next() }

// Values implements NativeResult.
func (r *rowsResult) Values() ([]any, error) {
	vals := make([]any, len(r.types))
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

// Err implements NativeResult.
func (r *rowsResult) Err() error { return r.rows.Err() }

// Close implements NativeResult.
func (r *rowsResult) Close() error { return r.rows.Close() }

// RowsAffected returns the number of rows changed by the statement.
func (r *execResult) RowsAffected() (int64, error) { return r.res.RowsAffected() }

// ColumnCount implements NativeResult; statements without rows have no
// column metadata.
func (r *execResult) ColumnCount() (int, error) { return 0, ErrNotTabular }

// BaseType implements NativeResult.
func (r *execResult) BaseType(int) (string, error) { return "", ErrNotTabular }

// ColumnScale implements NativeResult.
func (r *execResult) ColumnScale(int) (int, error) { return 0, ErrNotTabular }

// ColumnAlias implements NativeResult.
func (r *execResult) ColumnAlias(int) (string, error) { return "", ErrNotTabular }

// Next implements NativeResult.
func (r *execResult) Next() bool { return false }

// Values implements NativeResult.
func (r *execResult) Values() ([]any, error) { return nil, ErrNotTabular }

// Err implements NativeResult.
func (r *execResult) Err() error { return nil }

// Close implements NativeResult.
func (r *execResult) Close() error { return nil }
