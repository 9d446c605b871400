// Package datarow encodes collected attributes into the delimited transport
// rows consumed by the dispatcher:
//
//	elementId,attributeId,collectorId,taskId,timestamp,attributeName,<Begin>value<End>
//
// Nested multi-record values use the Item and Field tiers of the delimiter
// set. Nothing is escaped; see package delimiter.
package datarow

import (
	"strconv"
	"strings"

	"github.com/nmslite/inventory-agent/internal/delimiter"
)

// DataRow is one collected attribute. Header fields must not contain commas.
type DataRow struct {
	ElementID     int64  `json:"element_id"`
	AttributeID   int64  `json:"attribute_id"`
	CollectorID   string `json:"collector_id"`
	TaskID        int64  `json:"task_id"`
	Timestamp     int64  `json:"timestamp"`
	AttributeName string `json:"attribute_name"`
	Value         string `json:"value"`
}

// Field is one key/value pair of a Record.
type Field struct {
	Key   string
	Value string
}

// Record is one sub-record of a multi-record value: a key (user name, VM
// name, interface index ...) plus fields in insertion order.
type Record struct {
	Key    string
	Fields []Field
}

// NewRecord returns an empty record with the given key.
func NewRecord(key string) *Record {
	return &Record{Key: key}
}

// Set adds a field, or replaces the value of an existing key in place so the
// original insertion order is kept.
func (r *Record) Set(key, value string) *Record {
	for i := range r.Fields {
		if r.Fields[i].Key == key {
			r.Fields[i].Value = value
			return r
		}
	}
	r.Fields = append(r.Fields, Field{Key: key, Value: value})
	return r
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (string, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Encode renders row as one transport line.
func Encode(set delimiter.Set, row DataRow) string {
	var sb strings.Builder
	sb.Grow(64 + len(row.AttributeName) + len(row.Value))
	sb.WriteString(strconv.FormatInt(row.ElementID, 10))
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatInt(row.AttributeID, 10))
	sb.WriteByte(',')
	sb.WriteString(row.CollectorID)
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatInt(row.TaskID, 10))
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatInt(row.Timestamp, 10))
	sb.WriteByte(',')
	sb.WriteString(row.AttributeName)
	sb.WriteByte(',')
	sb.WriteString(set.Begin)
	sb.WriteString(row.Value)
	sb.WriteString(set.End)
	return sb.String()
}

// EncodeMultiple renders records as a nested value. An empty slice yields an
// empty string, and callers must then skip the attribute entirely.
func EncodeMultiple(set delimiter.Set, records []Record) string {
	var sb strings.Builder
	for _, rec := range records {
		sb.WriteString(set.Item)
		sb.WriteString(rec.Key)
		for _, f := range rec.Fields {
			sb.WriteString(set.Field)
			sb.WriteString(f.Key)
			sb.WriteString(`="`)
			sb.WriteString(f.Value)
			sb.WriteByte('"')
		}
	}
	return sb.String()
}
