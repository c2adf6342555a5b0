package fbexec

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Executor is a prepared statement that can be executed repeatedly until
// it is finished.
type Executor interface {
	Execute(binds ...any) (*Result, error)
	ExecuteContext(ctx context.Context, binds ...any) (*Result, error)
	Finish() error
}

// Base holds the driver-independent part of a statement: the parsed query,
// its options and the finish hook chain.
type Base struct {
	query    *Query
	config   Config
	finished bool
	onFinish []func() error
}

// Statement executes a parsed query on a native statement handle and
// describes the result in neutral terms. It is not safe for concurrent use.
type Statement struct {
	Base
	native NativeStatement
}

// Result is the outcome of one execution. The caller owns it and must close
// Cursor.
type Result struct {
	Cursor Cursor
	Schema Schema
	Types  *TypeMap
}

// execOptions carries per-execution tweaks from decorators.
type execOptions struct {
	wrap func(Cursor) Cursor
}

// NewBase parses query and returns the base of a statement.
func NewBase(query string, cfg ...Config) (*Base, error) {
	config := defaultConfig(cfg...)
	q, err := ParseQuery(query, config)
	if err != nil {
		return nil, err
	}
	return &Base{query: q, config: config}, nil
}

// Query returns the parsed query.
func (b *Base) Query() *Query { return b.query }

// RewindableResult reports whether executions return buffered cursors.
func (b *Base) RewindableResult() bool { return b.config.RewindableResult }

// Finished reports whether Finish has run.
func (b *Base) Finished() bool { return b.finished }

// OnFinish registers fn to run when the statement is finished, after the
// hooks registered before it.
func (b *Base) OnFinish(fn func() error) {
	b.onFinish = append(b.onFinish, fn)
}

// Finish runs the finish hooks once. Later calls return ErrFinished.
func (b *Base) Finish() error {
	if b.finished {
		return ErrFinished
	}
	b.finished = true
	var errs []error
	for _, fn := range b.onFinish {
		errs = append(errs, fn())
	}
	b.onFinish = nil
	return errors.Join(errs...)
}

func (b *Base) logger() *slog.Logger { return b.config.Logger }

// NewStatement parses query and binds it to the native handle.
func NewStatement(query string, native NativeStatement, cfg ...Config) (*Statement, error) {
	base, err := NewBase(query, cfg...)
	if err != nil {
		return nil, err
	}
	return &Statement{Base: *base, native: native}, nil
}

// Native returns the native statement handle.
func (s *Statement) Native() NativeStatement { return s.native }

// Execute is a convenience for ExecuteContext with context.Background().
func (s *Statement) Execute(binds ...any) (*Result, error) {
	return s.ExecuteContext(context.Background(), binds...)
}

// ExecuteContext resolves binds, runs the native statement and returns the
// result cursor, its schema and the output type map. Native execution errors
// are returned unchanged.
func (s *Statement) ExecuteContext(ctx context.Context, binds ...any) (*Result, error) {
	return s.execute(ctx, execOptions{}, binds)
}

func (s *Statement) execute(ctx context.Context, opts execOptions, binds []any) (*Result, error) {
	if s.finished {
		return nil, ErrFinished
	}
	args, err := ResolveBinds(s.query.Index, binds...)
	if err != nil {
		return nil, err
	}

	var res NativeResult
	if len(args) > 0 {
		res, err = s.native.ExecuteFor(ctx, args)
	} else {
		res, err = s.native.Execute(ctx)
	}
	if err != nil {
		return nil, err
	}

	schema := describe(res)

	cursor := NewCursor(s.config.RewindableResult, res)
	if opts.wrap != nil {
		cursor = opts.wrap(cursor)
	}

	s.logger().Debug("statement executed",
		slog.String("type", s.query.Type.String()),
		slog.Int("args", len(args)),
		slog.Int("columns", schema.Len()),
		slog.Bool("rewindable", s.config.RewindableResult))

	return &Result{Cursor: cursor, Schema: schema, Types: s.config.Types}, nil
}

// describe builds the neutral schema of res. Non-tabular results report no
// columns; their introspection errors are not failures.
func describe(res NativeResult) Schema {
	n, err := res.ColumnCount()
	if err != nil || n < 0 {
		n = 0
	}
	columns := make([]Column, 0, n)
	for i := 0; i < n; i++ {
		name, _ := res.BaseType(i)
		native := ParseNativeType(strings.ToLower(name))
		scale, err := res.ColumnScale(i)
		if err != nil {
			scale = 0
		}
		alias, _ := res.ColumnAlias(i)
		columns = append(columns, Column{
			Name:     alias,
			Native:   native,
			Semantic: native.Semantic(scale),
		})
	}
	return Schema{columns: columns}
}

// Finish closes the native handle, then runs the base finish hooks.
func (s *Statement) Finish() error {
	if s.finished {
		return ErrFinished
	}
	closeErr := s.native.Close()
	return errors.Join(closeErr, s.Base.Finish())
}
