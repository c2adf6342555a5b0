package fbexec

import (
	"errors"
	"io"
	"log/slog"
)

// Dialect identifies the SQL dialect used to render placeholders in the
// native query text.
type Dialect int

// Config defines limits and behavior tweaks for statements.
type Config struct {
	// Dialect selects the placeholder syntax handed to the native driver.
	Dialect Dialect
	// RewindableResult makes executions return a buffered ArrayCursor instead
	// of a ForwardCursor.
	RewindableResult bool
	// AutoCommit makes Conn.Prepare return an AutoCommitStatement.
	AutoCommit bool
	// MaxParams limits the number of placeholders in a single query.
	// If = 0 (or omitted), it uses a sensible per-dialect default.
	// If < 0, it's treated as "unlimited".
	MaxParams int
	// MaxNameLen limits the maximum allowed length of a placeholder name,
	// e.g. ":this_is_a_name". Names longer than this cause ErrParamNameTooLong.
	MaxNameLen int
	// Types is the output coercion table returned with every Result.
	// Nil selects the table built by OutputTypes.
	Types *TypeMap
	// Logger receives debug records about transaction decisions.
	// Nil discards them.
	Logger *slog.Logger
}

// P is a convenient alias for map[string]any to use as a named bind.
type P = map[string]any

const (
	Firebird Dialect = iota
	Postgres
	MySQL
	SQLite
	SQLServer
	DuckDB
)

const cacheSize = 4096 // Default size for the field-index cache

var (
	ErrParamNameTooLong             = errors.New("fbexec: parameter name too long")
	ErrTooManyParams                = errors.New("fbexec: too many parameters")
	ErrBindOutOfRange               = errors.New("fbexec: named bind slot out of range")
	ErrFieldAmbiguous               = errors.New("fbexec: ambiguous field name")
	ErrFinished                     = errors.New("fbexec: statement already finished")
	ErrExecutionFailedAfterRollback = errors.New("fbexec: execution failed after rollback")
	ErrNotTabular                   = errors.New("fbexec: result has no columns")
	ErrNoScale                      = errors.New("fbexec: column has no scale")
	ErrTxInactive                   = errors.New("fbexec: transaction is not active")
	ErrCursorClosed                 = errors.New("fbexec: cursor closed")
	ErrRowIndex                     = errors.New("fbexec: row index out of range")
	ErrMoreThanOneRow               = errors.New("fbexec: more than one row")
	ErrNoRows                       = errors.New("fbexec: no rows in result")
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	case SQLServer:
		return "sqlserver"
	case Firebird:
		return "firebird"
	case DuckDB:
		return "duckdb"
	default:
		return "unknown"
	}
}

// ParseDialect returns the dialect named by s, as produced by Dialect.String.
func ParseDialect(s string) (Dialect, bool) {
	for d := Firebird; d <= DuckDB; d++ {
		if d.String() == s {
			return d, true
		}
	}
	return 0, false
}

// defaultConfig merges user config with per-dialect defaults.
func defaultConfig(config ...Config) Config {
	c := Config{}

	if len(config) > 0 {
		c = config[0]
	}

	if c.MaxParams == 0 {
		switch c.Dialect {
		case SQLServer:
			c.MaxParams = 2100
		case SQLite:
			c.MaxParams = 999
		case Firebird:
			c.MaxParams = 32767
		case Postgres, MySQL, DuckDB:
			c.MaxParams = 65535
		}
	}

	if c.MaxNameLen <= 0 {
		c.MaxNameLen = 64
	}

	if c.Types == nil {
		c.Types = outputTypes
	}

	if c.Logger == nil {
		c.Logger = discardLogger
	}

	return c
}
