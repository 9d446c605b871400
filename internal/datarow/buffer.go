package datarow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nmslite/inventory-agent/internal/delimiter"
)

var (
	// ErrAttributeNotMapped means the dispatcher did not ask for the
	// attribute. Callers log it and carry on.
	ErrAttributeNotMapped = errors.New("attribute not in attribute map")

	// ErrEmptyValue means there is nothing to report; no row is built.
	ErrEmptyValue = errors.New("empty attribute value")
)

// Header carries the per-task fields stamped on every row.
type Header struct {
	ElementID   int64
	CollectorID string
	TaskID      int64
	// DatabaseTimestamp is the dispatch-relative logical time the task was
	// issued at.
	DatabaseTimestamp int64
}

// Buffer accumulates the rows of one task. Rows are never changed once
// added; String serializes them when the task finishes.
type Buffer struct {
	set        delimiter.Set
	header     Header
	attributes map[string]int64
	started    time.Time
	now        func() time.Time
	last       int64
	rows       []DataRow
}

// NewBuffer creates the output buffer for a task. attributes is the
// dispatcher supplied attribute name to id map; started is when execution
// began and drives the elapsed-time part of row timestamps.
func NewBuffer(set delimiter.Set, header Header, attributes map[string]int64, started time.Time) *Buffer {
	return &Buffer{
		set:        set,
		header:     header,
		attributes: attributes,
		started:    started,
		now:        time.Now,
		last:       header.DatabaseTimestamp,
	}
}

// Delimiters returns the set rows are encoded with.
func (b *Buffer) Delimiters() delimiter.Set {
	return b.set
}

// Mapped reports whether the dispatcher asked for name.
func (b *Buffer) Mapped(name string) bool {
	_, ok := b.attributes[name]
	return ok
}

// timestamp is the database timestamp plus elapsed milliseconds, clamped so
// it never goes backwards within the task.
func (b *Buffer) timestamp() int64 {
	ts := b.header.DatabaseTimestamp + b.now().Sub(b.started).Milliseconds()
	if ts < b.last {
		ts = b.last
	}
	b.last = ts
	return ts
}

// Row builds, but does not add, the row for name. Use it when a batch of
// rows must be committed all together.
func (b *Buffer) Row(name, value string) (DataRow, error) {
	id, ok := b.attributes[name]
	if !ok {
		return DataRow{}, fmt.Errorf("%w: %s", ErrAttributeNotMapped, name)
	}
	if value == "" {
		return DataRow{}, fmt.Errorf("%w: %s", ErrEmptyValue, name)
	}
	return DataRow{
		ElementID:     b.header.ElementID,
		AttributeID:   id,
		CollectorID:   b.header.CollectorID,
		TaskID:        b.header.TaskID,
		Timestamp:     b.timestamp(),
		AttributeName: name,
		Value:         value,
	}, nil
}

// Add appends finished rows.
func (b *Buffer) Add(rows ...DataRow) {
	b.rows = append(b.rows, rows...)
}

// Append builds and adds the row for name.
func (b *Buffer) Append(name, value string) error {
	row, err := b.Row(name, value)
	if err != nil {
		return err
	}
	b.Add(row)
	return nil
}

// AppendRecords encodes records with EncodeMultiple and adds the row. An
// empty record set adds nothing and reports ErrEmptyValue.
func (b *Buffer) AppendRecords(name string, records []Record) error {
	return b.Append(name, EncodeMultiple(b.set, records))
}

// Len returns the number of rows added so far.
func (b *Buffer) Len() int {
	return len(b.rows)
}

// Rows returns a copy of the rows added so far.
func (b *Buffer) Rows() []DataRow {
	out := make([]DataRow, len(b.rows))
	copy(out, b.rows)
	return out
}

// String serializes every row, one per line.
func (b *Buffer) String() string {
	lines := make([]string, len(b.rows))
	for i, row := range b.rows {
		lines[i] = Encode(b.set, row)
	}
	return strings.Join(lines, "\n")
}
