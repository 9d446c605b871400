// Package delimiter defines the tiered text delimiters shared by every
// component that reads or writes collected inventory values.
//
// Tiers, outermost to innermost:
//
//	Row          separates independently addressable values in one outbound value
//	Begin / End  bracket the value of a single attribute
//	Item         separates repeated sub-records inside one value (tier 1)
//	Field        separates key="value" pairs inside one sub-record (tier 2)
//
// Tokens are never escaped. A collected value that contains one of them
// decodes ambiguously; the companion dispatcher relies on the exact literals,
// so the grammar is kept as is.
package delimiter

import (
	"fmt"
	"strings"
)

// Default token literals.
const (
	DefaultRow   = "<BDNA,>"
	DefaultBegin = "<BDNA,A>"
	DefaultEnd   = "<BDNA,A/>"
	DefaultItem  = "<BDNA,1>"
	DefaultField = "<BDNA,2>"
)

// Set is one delimiter vocabulary. It is passed by value to the encoders and
// parsers that need it.
type Set struct {
	Row   string `yaml:"row" json:"row"`
	Begin string `yaml:"begin" json:"begin"`
	End   string `yaml:"end" json:"end"`
	Item  string `yaml:"item" json:"item"`
	Field string `yaml:"field" json:"field"`
}

// Default returns the delimiter set understood by the dispatcher.
func Default() Set {
	return Set{
		Row:   DefaultRow,
		Begin: DefaultBegin,
		End:   DefaultEnd,
		Item:  DefaultItem,
		Field: DefaultField,
	}
}

// ApplyDefaults fills empty tokens from Default.
func (s *Set) ApplyDefaults() {
	d := Default()
	if s.Row == "" {
		s.Row = d.Row
	}
	if s.Begin == "" {
		s.Begin = d.Begin
	}
	if s.End == "" {
		s.End = d.End
	}
	if s.Item == "" {
		s.Item = d.Item
	}
	if s.Field == "" {
		s.Field = d.Field
	}
}

// Tokens returns the literals in tier order.
func (s Set) Tokens() []string {
	return []string{s.Row, s.Begin, s.End, s.Item, s.Field}
}

// Validate checks that every token is non-empty and distinct.
func (s Set) Validate() error {
	names := []string{"row", "begin", "end", "item", "field"}
	seen := make(map[string]string, len(names))
	for i, tok := range s.Tokens() {
		if tok == "" {
			return fmt.Errorf("%s delimiter must not be empty", names[i])
		}
		if other, dup := seen[tok]; dup {
			return fmt.Errorf("%s delimiter %q duplicates %s delimiter", names[i], tok, other)
		}
		seen[tok] = names[i]
	}
	return nil
}

// Contains reports whether raw collected data contains any token. Callers
// use it to log values that will not decode cleanly.
func (s Set) Contains(value string) bool {
	for _, tok := range s.Tokens() {
		if tok != "" && strings.Contains(value, tok) {
			return true
		}
	}
	return false
}

// JoinList joins list-valued data with the Row delimiter.
func (s Set) JoinList(values []string) string {
	return strings.Join(values, s.Row)
}

// SplitList is the inverse of JoinList. Empty entries are dropped.
func (s Set) SplitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, s.Row)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
