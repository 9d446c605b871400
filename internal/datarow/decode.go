package datarow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nmslite/inventory-agent/internal/delimiter"
)

// ErrMalformedRow is returned by DecodeRow for input that is not a transport
// row.
var ErrMalformedRow = errors.New("malformed data row")

// DecodeRow parses one line produced by Encode.
func DecodeRow(set delimiter.Set, line string) (DataRow, error) {
	var row DataRow

	begin := strings.Index(line, set.Begin)
	if begin < 0 {
		return row, fmt.Errorf("%w: missing begin tag", ErrMalformedRow)
	}
	if !strings.HasSuffix(line, set.End) || len(line)-len(set.End) < begin+len(set.Begin) {
		return row, fmt.Errorf("%w: missing end tag", ErrMalformedRow)
	}

	header := line[:begin]
	if !strings.HasSuffix(header, ",") {
		return row, fmt.Errorf("%w: header not comma terminated", ErrMalformedRow)
	}
	fields := strings.Split(strings.TrimSuffix(header, ","), ",")
	if len(fields) != 6 {
		return row, fmt.Errorf("%w: expected 6 header fields, got %d", ErrMalformedRow, len(fields))
	}

	var err error
	if row.ElementID, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return row, fmt.Errorf("%w: element id: %v", ErrMalformedRow, err)
	}
	if row.AttributeID, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return row, fmt.Errorf("%w: attribute id: %v", ErrMalformedRow, err)
	}
	row.CollectorID = fields[2]
	if row.TaskID, err = strconv.ParseInt(fields[3], 10, 64); err != nil {
		return row, fmt.Errorf("%w: task id: %v", ErrMalformedRow, err)
	}
	if row.Timestamp, err = strconv.ParseInt(fields[4], 10, 64); err != nil {
		return row, fmt.Errorf("%w: timestamp: %v", ErrMalformedRow, err)
	}
	row.AttributeName = fields[5]
	row.Value = line[begin+len(set.Begin) : len(line)-len(set.End)]
	return row, nil
}

// SplitRows cuts a serialized buffer into its rows. Each row ends at the
// first End token, so a value that itself contains End splits early.
func SplitRows(set delimiter.Set, payload string) []string {
	var rows []string
	rest := payload
	for {
		rest = strings.TrimLeft(rest, "\r\n")
		if rest == "" {
			return rows
		}
		idx := strings.Index(rest, set.End)
		if idx < 0 {
			// trailing garbage without an end tag
			return append(rows, rest)
		}
		cut := idx + len(set.End)
		rows = append(rows, rest[:cut])
		rest = rest[cut:]
	}
}

// DecodeMultiple is the inverse of EncodeMultiple.
func DecodeMultiple(set delimiter.Set, value string) []Record {
	if value == "" {
		return nil
	}
	chunks := strings.Split(value, set.Item)
	records := make([]Record, 0, len(chunks))
	// chunks[0] is whatever preceded the first Item token, normally empty
	for _, chunk := range chunks[1:] {
		parts := strings.Split(chunk, set.Field)
		rec := Record{Key: parts[0]}
		for _, p := range parts[1:] {
			key, val, _ := strings.Cut(p, "=")
			val = strings.TrimPrefix(val, `"`)
			val = strings.TrimSuffix(val, `"`)
			rec.Fields = append(rec.Fields, Field{Key: key, Value: val})
		}
		records = append(records, rec)
	}
	return records
}
