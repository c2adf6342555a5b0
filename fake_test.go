package fbexec

import (
	"context"
	"errors"
)

// --------------------------------
// Test doubles for the native client
// --------------------------------

type fakeColumn struct {
	alias    string
	base     string
	scale    int
	scaleErr error
}

type fakeResult struct {
	cols     []fakeColumn
	countErr error
	rows     [][]any
	pos      int
	closed   int
	err      error
}

type fakeTx struct {
	active    bool
	commits   int
	rollbacks int
	commitErr error
	log       *[]string
}

type fakeNative struct {
	typ      StatementType
	tx       *fakeTx
	result   *fakeResult
	execErr  error
	noArgs   int
	withArgs [][]any
	closed   int
	log      []string
}

var errBoom = errors.New("boom")

func newFakeNative(typ StatementType, res *fakeResult) *fakeNative {
	n := &fakeNative{typ: typ, result: res}
	n.tx = &fakeTx{active: true, log: &n.log}
	return n
}

func (n *fakeNative) Execute(context.Context) (NativeResult, error) {
	n.noArgs++
	n.log = append(n.log, "execute")
	if n.execErr != nil {
		return nil, n.execErr
	}
	return n.result, nil
}

func (n *fakeNative) ExecuteFor(_ context.Context, args []any) (NativeResult, error) {
	n.withArgs = append(n.withArgs, append([]any(nil), args...))
	n.log = append(n.log, "execute_for")
	if n.execErr != nil {
		return nil, n.execErr
	}
	return n.result, nil
}

func (n *fakeNative) Type() StatementType      { return n.typ }
func (n *fakeNative) Transaction() Transaction { return n.tx }

func (n *fakeNative) Close() error {
	n.closed++
	n.log = append(n.log, "close")
	return nil
}

func (t *fakeTx) Active() bool { return t.active }

func (t *fakeTx) Commit() error {
	t.commits++
	*t.log = append(*t.log, "commit")
	if t.commitErr != nil {
		return t.commitErr
	}
	t.active = false
	return nil
}

func (t *fakeTx) Rollback() error {
	t.rollbacks++
	*t.log = append(*t.log, "rollback")
	t.active = false
	return nil
}

func (r *fakeResult) ColumnCount() (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return len(r.cols), nil
}

func (r *fakeResult) BaseType(i int) (string, error) { return r.cols[i].base, nil }

func (r *fakeResult) ColumnScale(i int) (int, error) {
	if r.cols[i].scaleErr != nil {
		return 0, r.cols[i].scaleErr
	}
	return r.cols[i].scale, nil
}

func (r *fakeResult) ColumnAlias(i int) (string, error) { return r.cols[i].alias, nil }

func (r *fakeResult) Next() bool {
	if r.closed > 0 || r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeResult) Values() ([]any, error) {
	return append([]any(nil), r.rows[r.pos-1]...), nil
}

func (r *fakeResult) Err() error { return r.err }

func (r *fakeResult) Close() error {
	r.closed++
	return nil
}

// rowsOf builds a single-column result of the given values.
func rowsOf(base string, vals ...any) *fakeResult {
	res := &fakeResult{cols: []fakeColumn{{alias: "V", base: base}}}
	for _, v := range vals {
		res.rows = append(res.rows, []any{v})
	}
	return res
}
