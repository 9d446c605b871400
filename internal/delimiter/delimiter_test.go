package delimiter

import (
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Set)
		wantErr bool
	}{
		{"Default", func(*Set) {}, false},
		{"EmptyRow", func(s *Set) { s.Row = "" }, true},
		{"EmptyField", func(s *Set) { s.Field = "" }, true},
		{"DuplicateItemField", func(s *Set) { s.Field = s.Item }, true},
		{"Custom", func(s *Set) { s.Row = "|ROW|" }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := Default()
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error, got none")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	s := Set{Item: "#1#"}
	s.ApplyDefaults()

	if s.Item != "#1#" {
		t.Errorf("ApplyDefaults overwrote Item: %q", s.Item)
	}
	if s.Row != DefaultRow || s.Begin != DefaultBegin || s.End != DefaultEnd || s.Field != DefaultField {
		t.Errorf("ApplyDefaults left empty tokens: %+v", s)
	}
}

func TestContains(t *testing.T) {
	s := Default()

	if s.Contains("plain value") {
		t.Error("plain value should not contain a token")
	}
	if !s.Contains("a<BDNA,2>b") {
		t.Error("expected field token to be detected")
	}
}

func TestJoinSplitList(t *testing.T) {
	s := Default()
	values := []string{"line one", "line two", "line three"}

	joined := s.JoinList(values)
	if joined != "line one<BDNA,>line two<BDNA,>line three" {
		t.Errorf("JoinList() = %q", joined)
	}

	got := s.SplitList(joined)
	if len(got) != len(values) {
		t.Fatalf("SplitList() returned %d values, want %d", len(got), len(values))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d = %q, want %q", i, got[i], values[i])
		}
	}

	if s.SplitList("") != nil {
		t.Error("SplitList(\"\") should return nil")
	}
}
