package fbexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CommitState tracks where an AutoCommitStatement is in its commit cycle.
type CommitState int

const (
	StateIdle CommitState = iota
	StateExecuted
	StateCommitted
	StateDeferredCommitPending
	StateRolledBack
	// StateFailed marks an execution that failed with no active
	// transaction to roll back.
	StateFailed
)

// AutoCommitStatement commits the native transaction on behalf of the
// caller.
//
// Buffered results and statements that yield no rows are committed as soon
// as they execute. Streaming SELECT, SELECT FOR UPDATE and EXECUTE PROCEDURE
// results keep the transaction open until their cursor is closed, since the
// native cursor fetches through it. A failed execution rolls the transaction
// back and returns an error wrapping ErrExecutionFailedAfterRollback.
type AutoCommitStatement struct {
	*Statement
	state CommitState
	gen   int // execution counter; stale cursors do not touch state
}

// NewAutoCommitStatement parses query and binds it to the native handle with
// auto-commit semantics.
func NewAutoCommitStatement(query string, native NativeStatement, cfg ...Config) (*AutoCommitStatement, error) {
	s, err := NewStatement(query, native, cfg...)
	if err != nil {
		return nil, err
	}
	return &AutoCommitStatement{Statement: s}, nil
}

// State returns the commit state left by the latest execution.
func (s *AutoCommitStatement) State() CommitState {
	return s.state
}

// CommitImmediately reports whether executions commit before returning.
func (s *AutoCommitStatement) CommitImmediately() bool {
	return s.config.RewindableResult || !s.native.Type().Tabular()
}

// Execute is a convenience for ExecuteContext with context.Background().
func (s *AutoCommitStatement) Execute(binds ...any) (*Result, error) {
	return s.ExecuteContext(context.Background(), binds...)
}

// ExecuteContext executes the statement and commits now or when the result
// cursor is closed.
func (s *AutoCommitStatement) ExecuteContext(ctx context.Context, binds ...any) (*Result, error) {
	if s.finished {
		return nil, ErrFinished
	}
	tx := s.native.Transaction()
	immediate := s.CommitImmediately()
	s.gen++
	gen := s.gen

	var opts execOptions
	if !immediate {
		opts.wrap = func(c Cursor) Cursor {
			return &commitOnClose{Cursor: c, tx: tx, onClose: func(committed bool) {
				s.deferredClosed(gen, committed)
			}}
		}
	}

	res, err := s.execute(ctx, opts, binds)
	if err != nil {
		return nil, s.rollback(tx, err)
	}
	s.state = StateExecuted

	if !immediate {
		s.state = StateDeferredCommitPending
		s.logger().Debug("commit deferred until cursor close", slog.String("type", s.native.Type().String()))
		return res, nil
	}

	if ac, ok := buffered(res.Cursor); ok {
		// Rows must be fetched while the transaction is still open.
		if _, err := ac.Len(); err != nil {
			res.Cursor.Close()
			return nil, s.rollback(tx, err)
		}
	}
	if tx.Active() {
		if err := tx.Commit(); err != nil {
			res.Cursor.Close()
			return nil, s.rollback(tx, err)
		}
		s.logger().Debug("transaction committed", slog.String("type", s.native.Type().String()))
	}
	s.state = StateCommitted
	return res, nil
}

// deferredClosed records the outcome of closing the cursor of execution gen.
// A close that found the transaction already ended leaves it executed, not
// committed.
func (s *AutoCommitStatement) deferredClosed(gen int, committed bool) {
	if gen != s.gen || s.state != StateDeferredCommitPending {
		return
	}
	if committed {
		s.state = StateCommitted
		s.logger().Debug("deferred commit done at cursor close")
		return
	}
	s.state = StateExecuted
}

// rollback undoes the active transaction after cause and returns the error
// reported to the caller.
func (s *AutoCommitStatement) rollback(tx Transaction, cause error) error {
	if !tx.Active() {
		s.state = StateFailed
		return cause
	}
	s.state = StateRolledBack
	s.logger().Debug("transaction rolled back", slog.Any("cause", cause))
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("%w: %w", ErrExecutionFailedAfterRollback, errors.Join(cause, err))
	}
	return fmt.Errorf("%w: %w", ErrExecutionFailedAfterRollback, cause)
}

// Finish commits the transaction if it is still active, then finishes the
// statement.
func (s *AutoCommitStatement) Finish() error {
	if s.finished {
		return ErrFinished
	}
	var commitErr error
	if tx := s.native.Transaction(); tx.Active() {
		commitErr = tx.Commit()
		if commitErr == nil {
			s.state = StateCommitted
		}
	}
	return errors.Join(commitErr, s.Statement.Finish())
}

// String returns the name of the state.
func (st CommitState) String() string {
	switch st {
	case StateExecuted:
		return "executed"
	case StateCommitted:
		return "committed"
	case StateDeferredCommitPending:
		return "deferred commit pending"
	case StateRolledBack:
		return "rolled back"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}
