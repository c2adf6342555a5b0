package fbexec

import (
	"errors"
	"fmt"
)

// Cursor iterates the rows of one execution.
type Cursor interface {
	// Next advances to the next row and reports whether there is one.
	Next() bool
	// Row returns the current row. It is nil before the first Next and after
	// the last.
	Row() []any
	// Err returns the error, if any, that stopped the iteration.
	Err() error
	// Close releases the native result. It is safe to call more than once.
	Close() error
}

// ForwardCursor makes a single sequential pass over a native result,
// holding only the current row.
type ForwardCursor struct {
	res    NativeResult
	row    []any
	err    error
	closed bool
}

// ArrayCursor buffers the whole native result on first access. It can be
// rewound and indexed.
type ArrayCursor struct {
	res    NativeResult
	rows   [][]any
	pos    int
	loaded bool
	err    error
	closed bool
}

// commitOnClose commits a transaction before closing the cursor it wraps.
type commitOnClose struct {
	Cursor
	tx   Transaction
	done bool
	err  error
	// onClose, if set, learns whether the first Close committed.
	onClose func(committed bool)
}

// NewCursor returns an ArrayCursor when rewindable is set and a
// ForwardCursor otherwise.
func NewCursor(rewindable bool, res NativeResult) Cursor {
	if rewindable {
		return &ArrayCursor{res: res, pos: -1}
	}
	return &ForwardCursor{res: res}
}

// CommitOnClose wraps c so that its first Close commits tx, if still active,
// before closing c. Later calls return the first result.
func CommitOnClose(c Cursor, tx Transaction) Cursor {
	return &commitOnClose{Cursor: c, tx: tx}
}

// Next implements Cursor.
func (c *ForwardCursor) Next() bool {
	c.row = nil
	if c.closed || c.err != nil || c.res == nil {
		return false
	}
	if !c.res.Next() {
		c.err = c.res.Err()
		return false
	}
	row, err := c.res.Values()
	if err != nil {
		c.err = err
		return false
	}
	c.row = row
	return true
}

// Row implements Cursor.
func (c *ForwardCursor) Row() []any { return c.row }

// Err implements Cursor.
func (c *ForwardCursor) Err() error { return c.err }

// Close implements Cursor.
func (c *ForwardCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.row = nil
	if c.res == nil {
		return nil
	}
	return c.res.Close()
}

// load drains the native result into memory and releases it.
func (c *ArrayCursor) load() error {
	if c.loaded {
		return c.err
	}
	c.loaded = true
	if c.closed {
		c.err = ErrCursorClosed
		return c.err
	}
	if c.res == nil {
		return nil
	}
	for c.res.Next() {
		row, err := c.res.Values()
		if err != nil {
			c.err = err
			break
		}
		c.rows = append(c.rows, row)
	}
	if c.err == nil {
		c.err = c.res.Err()
	}
	if err := c.res.Close(); err != nil && c.err == nil {
		c.err = err
	}
	c.res = nil
	return c.err
}

// Next implements Cursor.
func (c *ArrayCursor) Next() bool {
	if c.closed || c.load() != nil {
		return false
	}
	if c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		return false
	}
	c.pos++
	return true
}

// Row implements Cursor.
func (c *ArrayCursor) Row() []any {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos]
}

// Err implements Cursor.
func (c *ArrayCursor) Err() error { return c.err }

// Rewind moves the cursor back before the first row.
func (c *ArrayCursor) Rewind() error {
	if c.closed {
		return ErrCursorClosed
	}
	if err := c.load(); err != nil {
		return err
	}
	c.pos = -1
	return nil
}

// Len returns the number of buffered rows, loading them if needed.
func (c *ArrayCursor) Len() (int, error) {
	if c.closed {
		return 0, ErrCursorClosed
	}
	if err := c.load(); err != nil {
		return 0, err
	}
	return len(c.rows), nil
}

// At returns row i without moving the cursor.
func (c *ArrayCursor) At(i int) ([]any, error) {
	n, err := c.Len()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrRowIndex, i, n)
	}
	return c.rows[i], nil
}

// Close implements Cursor. Buffered rows are dropped.
func (c *ArrayCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.rows = nil
	c.pos = -1
	if c.res == nil {
		return nil
	}
	err := c.res.Close()
	c.res = nil
	return err
}

// Unwrap returns the decorated cursor.
func (c *commitOnClose) Unwrap() Cursor { return c.Cursor }

// Close commits the transaction if it is still active, then closes the
// wrapped cursor.
func (c *commitOnClose) Close() error {
	if c.done {
		return c.err
	}
	c.done = true
	var commitErr error
	committed := false
	if c.tx != nil && c.tx.Active() {
		commitErr = c.tx.Commit()
		committed = commitErr == nil
	}
	c.err = errors.Join(commitErr, c.Cursor.Close())
	if c.onClose != nil {
		c.onClose(committed)
	}
	return c.err
}

// buffered returns the ArrayCursor behind c, if any.
func buffered(c Cursor) (*ArrayCursor, bool) {
	for {
		switch x := c.(type) {
		case *ArrayCursor:
			return x, true
		case interface{ Unwrap() Cursor }:
			c = x.Unwrap()
		default:
			return nil, false
		}
	}
}
