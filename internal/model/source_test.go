package model

import (
	"errors"
	"math"
	"testing"
)

func TestFromTable_ContentConvention(t *testing.T) {
	src := FromTable("doc.pdf", []string{ContentColumn}, []Row{{ContentColumn: "hello"}})
	if !src.IsText() {
		t.Fatalf("Expected text source, got %s", src.Kind)
	}
	if src.Content != "hello" {
		t.Errorf("Expected content 'hello', got %q", src.Content)
	}

	tbl := FromTable("a.csv", []string{"Content", "extra"}, nil)
	if tbl.IsText() {
		t.Error("Two-column table must stay tabular")
	}
}

func TestShape(t *testing.T) {
	src := NewTable("a", []string{"id", "name"}, []Row{{"id": int64(1)}, {"id": int64(2)}})
	if got := src.Shape().String(); got != "(2, 2)" {
		t.Errorf("Expected (2, 2), got %s", got)
	}
	if got := NewText("t", "x").Shape(); got != (Shape{1, 1}) {
		t.Errorf("Expected text shape (1, 1), got %v", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{int(3), int64(3)},
		{int32(-4), int64(-4)},
		{uint8(7), int64(7)},
		{float32(1.5), float64(1.5)},
		{[]byte("abc"), "abc"},
		{"s", "s"},
		{true, true},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%v) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}

	if _, err := Normalize([]string{"x"}); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("Expected ErrUnsupportedValue, got %v", err)
	}
}

func TestEqual(t *testing.T) {
	if !Equal(nil, nil) {
		t.Error("null must equal null")
	}
	if Equal(nil, "") {
		t.Error("null must not equal empty string")
	}
	if Equal(int64(1), float64(1)) {
		t.Error("equality must be type-sensitive")
	}
	if !Equal(math.NaN(), math.NaN()) {
		t.Error("NaN must equal NaN")
	}
	if !Equal("x", "x") {
		t.Error("equal strings must compare equal")
	}
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"", nil},
		{"  ", nil},
		{"42", int64(42)},
		{"-3.25", float64(-3.25)},
		{"TRUE", true},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		if got := ParseCell(tt.raw); got != tt.want {
			t.Errorf("ParseCell(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format("y"); got != `"y"` {
		t.Errorf("Expected quoted string, got %s", got)
	}
	if got := Format(nil); got != "null" {
		t.Errorf("Expected null, got %s", got)
	}
	if got := FormatPlain(float64(2.5)); got != "2.5" {
		t.Errorf("Expected 2.5, got %s", got)
	}
}
