package fbexec

import "context"

// StatementType classifies a statement the way the native driver reports it.
type StatementType int

const (
	StmtOther StatementType = iota
	StmtSelect
	StmtSelectForUpdate
	StmtExecProcedure
	StmtInsert
	StmtUpdate
	StmtDelete
	StmtMerge
	StmtDDL
	StmtTransactionControl
)

// NativeStatement is a prepared statement handle of the native client.
type NativeStatement interface {
	// Execute runs the statement without arguments.
	Execute(ctx context.Context) (NativeResult, error)
	// ExecuteFor runs the statement with positional arguments.
	ExecuteFor(ctx context.Context, args []any) (NativeResult, error)
	// Type reports the statement classification.
	Type() StatementType
	// Transaction returns the transaction the statement runs in.
	Transaction() Transaction
	// Close releases the handle.
	Close() error
}

// NativeResult is the native result handle of one execution.
//
// Column introspection may fail for non-tabular statements; callers treat
// a ColumnCount error as zero columns and a ColumnScale error as zero scale.
type NativeResult interface {
	ColumnCount() (int, error)
	BaseType(i int) (string, error)
	ColumnScale(i int) (int, error)
	ColumnAlias(i int) (string, error)

	// Next advances to the next row. It returns false at the end of the
	// result or on error; Err distinguishes the two.
	Next() bool
	// Values returns the current row. The slice is owned by the caller.
	Values() ([]any, error)
	Err() error
	Close() error
}

// Transaction is the native transaction owned by a statement handle.
type Transaction interface {
	Active() bool
	Commit() error
	Rollback() error
}

// String returns the native driver's name for the statement type.
func (t StatementType) String() string {
	switch t {
	case StmtSelect:
		return "select"
	case StmtSelectForUpdate:
		return "select for update"
	case StmtExecProcedure:
		return "execute procedure"
	case StmtInsert:
		return "insert"
	case StmtUpdate:
		return "update"
	case StmtDelete:
		return "delete"
	case StmtMerge:
		return "merge"
	case StmtDDL:
		return "ddl"
	case StmtTransactionControl:
		return "transaction control"
	default:
		return "other"
	}
}

// Tabular reports whether the statement yields rows that must be fetched
// while its transaction is still open.
func (t StatementType) Tabular() bool {
	switch t {
	case StmtSelect, StmtSelectForUpdate, StmtExecProcedure:
		return true
	}
	return false
}
