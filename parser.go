package fbexec

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PlaceholderIndex maps placeholder names to their 0-based positional slots.
// Every placeholder occurrence owns exactly one slot; positional "?" markers
// own the slots that no name claims.
type PlaceholderIndex struct {
	slots map[string][]int
	count int
}

// Query is an immutable parsed statement.
type Query struct {
	// Text is the query as written by the caller.
	Text string
	// SQL is Text with every placeholder rendered for the target dialect.
	SQL string
	// Index locates named placeholders.
	Index PlaceholderIndex
	// Type classifies the statement by its leading keywords.
	Type StatementType
}

// Slots returns the slots owned by name in ascending order.
func (ix PlaceholderIndex) Slots(name string) []int {
	return ix.slots[name]
}

// Count returns the total number of placeholders in the query.
func (ix PlaceholderIndex) Count() int {
	return ix.count
}

// Names returns the placeholder names in order of first appearance.
func (ix PlaceholderIndex) Names() []string {
	names := make([]string, 0, len(ix.slots))
	for name := range ix.slots {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return ix.slots[names[i]][0] < ix.slots[names[j]][0]
	})
	return names
}

// NewPlaceholderIndex builds an index directly from name → slots pairs and a
// total placeholder count. It is meant for native drivers that expose their
// own parameter metadata.
func NewPlaceholderIndex(count int, slots map[string][]int) PlaceholderIndex {
	cp := make(map[string][]int, len(slots))
	for name, s := range slots {
		s = append([]int(nil), s...)
		sort.Ints(s)
		cp[name] = s
	}
	return PlaceholderIndex{slots: cp, count: count}
}

// ParseQuery scans q for positional "?" and named ":name" placeholders,
// skipping string literals, quoted identifiers, comments and "::" casts.
// It returns the parsed query with dialect placeholders in SQL.
func ParseQuery(q string, cfg ...Config) (*Query, error) {
	config := defaultConfig(cfg...)
	dialect := config.Dialect

	est := strings.Count(q, ":") + strings.Count(q, "?")
	var buf strings.Builder
	// Small oversizing to reduce reallocations; some dialects emit longer tokens.
	extraPer := 1
	switch dialect {
	case Postgres, SQLServer:
		extraPer = 4
	}
	buf.Grow(len(q) + 16 + est*extraPer)

	// words collects the unquoted, uncommented text for classification.
	var words strings.Builder
	words.Grow(len(q))

	slots := make(map[string][]int)
	n := 0
	var dqTag string // active dollar-quoted tag (Postgres-like)

	// State machine for safe parsing through strings, comments, identifiers, etc.
	const (
		sText = iota
		sSQ   // '...'
		sDQ   // "..."
		sBT   // `...` (MySQL/SQLite)
		sBR   // [...] (SQL Server)
		sLC   // line comment -- or # (MySQL only)
		sBC   // block comment /* ... */
		sDQD  // $tag$ ... $tag$ (dollar-quoted)
	)
	state := sText

	next := func() error {
		if config.MaxParams > 0 && n+1 > config.MaxParams {
			return fmt.Errorf("%w: requested=%d, limit=%d", ErrTooManyParams, n+1, config.MaxParams)
		}
		n++
		writePlaceholder(&buf, dialect, n)
		words.WriteString(" ? ")
		return nil
	}

	for i := 0; i < len(q); {
		c := q[i]

		switch state {
		case sText:
			// Enter/exit helper states while preserving the raw text
			if c == '-' && i+1 < len(q) && q[i+1] == '-' {
				state = sLC
				buf.WriteString("--")
				words.WriteByte(' ')
				i += 2
				continue
			}
			if c == '#' && dialect == MySQL {
				state = sLC
				buf.WriteByte('#')
				words.WriteByte(' ')
				i++
				continue
			}
			if c == '/' && i+1 < len(q) && q[i+1] == '*' {
				state = sBC
				buf.WriteString("/*")
				words.WriteByte(' ')
				i += 2
				continue
			}
			if c == '\'' {
				state = sSQ
				buf.WriteByte(c)
				words.WriteByte(' ')
				i++
				continue
			}
			if c == '"' {
				state = sDQ
				buf.WriteByte(c)
				words.WriteByte(' ')
				i++
				continue
			}
			if c == '`' && (dialect == MySQL || dialect == SQLite) {
				state = sBT
				buf.WriteByte(c)
				words.WriteByte(' ')
				i++
				continue
			}
			if c == '[' && dialect == SQLServer {
				state = sBR
				buf.WriteByte(c)
				words.WriteByte(' ')
				i++
				continue
			}
			// Dollar quoting exists only in Postgres-like dialects, and never
			// inside an identifier such as Firebird's RDB$DATABASE.
			if c == '$' && (dialect == Postgres || dialect == DuckDB) && !(i > 0 && (isAlphaNumUnderscore(q[i-1]) || q[i-1] == '$')) {
				if tag, ok := readDollarTag(q[i:]); ok {
					state = sDQD
					dqTag = tag
					buf.WriteString(tag)
					words.WriteByte(' ')
					i += len(tag)
					continue
				}
			}

			// positional ?
			if c == '?' {
				if err := next(); err != nil {
					return nil, err
				}
				i++
				continue
			}

			// :name
			if c == ':' && (i+1) < len(q) && q[i+1] != ':' && !(i > 0 && q[i-1] == ':') && isAlphaUnderscore(q[i+1]) {
				k := i + 2
				for k < len(q) && isAlphaNumUnderscore(q[k]) {
					k++
				}
				name := q[i+1 : k]

				// Check name length
				if config.MaxNameLen > 0 && len(name) > config.MaxNameLen {
					return nil, fmt.Errorf("%w: %q (%d > %d)", ErrParamNameTooLong, name, len(name), config.MaxNameLen)
				}
				slots[name] = append(slots[name], n)
				if err := next(); err != nil {
					return nil, err
				}
				i = k
				continue
			}

			buf.WriteByte(c)
			words.WriteByte(c)
			i++

		case sSQ:
			if c == '\\' {
				buf.WriteByte(c)
				i++
				if i < len(q) {
					buf.WriteByte(q[i])
					i++
				}
				continue
			}
			buf.WriteByte(c)
			i++
			if c == '\'' {
				if i < len(q) && q[i] == '\'' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sDQ:
			buf.WriteByte(c)
			i++
			if c == '"' {
				if i < len(q) && q[i] == '"' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sBT:
			buf.WriteByte(c)
			i++
			if c == '`' {
				if i < len(q) && q[i] == '`' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sBR:
			buf.WriteByte(c)
			i++
			if c == ']' {
				if i < len(q) && q[i] == ']' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sLC:
			buf.WriteByte(c)
			i++
			if c == '\n' || c == '\r' {
				words.WriteByte(' ')
				state = sText
			}

		case sBC:
			buf.WriteByte(c)
			i++
			if c == '*' && i < len(q) && q[i] == '/' {
				buf.WriteByte('/')
				i++
				state = sText
			}

		case sDQD:
			p := strings.Index(q[i:], dqTag)
			if p < 0 {
				buf.WriteString(q[i:])
				i = len(q)
			} else {
				buf.WriteString(q[i : i+p])
				buf.WriteString(dqTag)
				i += p + len(dqTag)
				dqTag = ""
				state = sText
			}
		}
	}

	return &Query{
		Text:  q,
		SQL:   buf.String(),
		Index: PlaceholderIndex{slots: slots, count: n},
		Type:  classifyStatement(words.String()),
	}, nil
}

// writePlaceholder emits a dialect-specific placeholder token for argument idx.
func writePlaceholder(b *strings.Builder, d Dialect, idx int) {
	switch d {
	case Postgres:
		b.WriteByte('$')
		var tmp [20]byte
		n := strconv.AppendInt(tmp[:0], int64(idx), 10)
		b.Write(n)
	case SQLServer:
		b.WriteString("@p")
		var tmp [20]byte
		n := strconv.AppendInt(tmp[:0], int64(idx), 10)
		b.Write(n)
	default: // Firebird, MySQL, SQLite, DuckDB
		b.WriteByte('?')
	}
}

// classifyStatement derives the statement type from the keyword text left
// after removing literals and comments.
func classifyStatement(code string) StatementType {
	fields := strings.Fields(strings.ToUpper(strings.ReplaceAll(code, "(", " ( ")))
	// Leading parentheses do not change the statement kind: "(SELECT ...)".
	for len(fields) > 0 && fields[0] == "(" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return StmtOther
	}

	has := func(words ...string) bool {
		for i := 0; i+len(words) <= len(fields); i++ {
			match := true
			for j, w := range words {
				if fields[i+j] != w {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
		return false
	}

	switch fields[0] {
	case "SELECT", "WITH":
		if has("FOR", "UPDATE") {
			return StmtSelectForUpdate
		}
		return StmtSelect
	case "EXECUTE":
		if len(fields) > 1 && (fields[1] == "PROCEDURE" || fields[1] == "BLOCK") {
			return StmtExecProcedure
		}
		return StmtOther
	case "CALL":
		return StmtExecProcedure
	case "VALUES", "TABLE", "FROM", "SHOW", "EXPLAIN", "DESCRIBE", "DESC", "PRAGMA", "SUMMARIZE":
		// Row-returning statements outside the SELECT family.
		return StmtSelect
	case "INSERT", "UPDATE", "DELETE", "MERGE", "UPSERT":
		// Firebird reports DML with RETURNING as a procedure call: it yields
		// a singleton result set.
		if has("RETURNING") {
			return StmtExecProcedure
		}
		switch fields[0] {
		case "INSERT", "UPSERT":
			return StmtInsert
		case "UPDATE":
			if len(fields) > 2 && fields[1] == "OR" && fields[2] == "INSERT" {
				return StmtInsert
			}
			return StmtUpdate
		case "DELETE":
			return StmtDelete
		default:
			return StmtMerge
		}
	case "CREATE", "ALTER", "DROP", "RECREATE", "COMMENT", "DECLARE", "GRANT", "REVOKE":
		return StmtDDL
	case "COMMIT", "ROLLBACK", "SET", "SAVEPOINT", "RELEASE":
		return StmtTransactionControl
	default:
		return StmtOther
	}
}

// --------------------------------
// Utils
// --------------------------------

// isAlphaUnderscore reports whether b is [A-Za-z_] .
func isAlphaUnderscore(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '_'
}

// isAlphaNumUnderscore reports whether b is [A-Za-z0-9_] .
func isAlphaNumUnderscore(b byte) bool {
	return isAlphaUnderscore(b) || (b >= '0' && b <= '9')
}

// readDollarTag detects a dollar-quoted opening tag ("$tag$") at the start of s.
// It returns the full tag (e.g. "$tag$") and true if found.
func readDollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	j := 1
	for j < len(s) && isAlphaNumUnderscore(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[:j+1], true
	}
	return "", false
}
