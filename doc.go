// Package fbexec executes parsed statements on a native database client and reports the outcome in driver-neutral terms: a Cursor over the rows, a Schema of neutral column types, and a TypeMap of output filters. It resolves mixed positional and :named binds into the positional form the native client expects, chooses between streaming and buffered cursors, and with AutoCommitStatement decides per statement whether to commit at once, at cursor close, or roll back. Conn adapts any database/sql driver as the native client.

package fbexec
