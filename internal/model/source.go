// Package model defines core data structures for docdiff.
package model

import (
	"fmt"
	"strings"
)

// ContentColumn is the reserved single-column schema that marks a loaded
// file as free text rather than a table.
const ContentColumn = "Content"

// Kind tells whether a source holds a table or a text blob.
type Kind uint8

const (
	KindTabular Kind = iota
	KindText
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTabular:
		return "tabular"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Row maps a column name to its cell value. Missing keys read as null.
type Row map[string]any

// Source is one loaded file, normalized into either tabular or text form.
// A Source is built once by a loader and must not be mutated afterwards;
// the comparison engine only reads it.
type Source struct {
	// Name is the path or URI the source was loaded from. Informational only.
	Name string

	Kind Kind

	// Columns and Rows are set for KindTabular.
	Columns []string
	Rows    []Row

	// Content is set for KindText.
	Content string
}

// Shape is the (row count, column count) pair of a tabular source.
type Shape struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// String renders the shape as "(rows, cols)".
func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Rows, s.Cols)
}

// NewText creates a text source.
func NewText(name, content string) *Source {
	return &Source{Name: name, Kind: KindText, Content: content}
}

// NewTable creates a tabular source. It does not apply the Content
// convention; use FromTable for loader output.
func NewTable(name string, columns []string, rows []Row) *Source {
	return &Source{Name: name, Kind: KindTabular, Columns: columns, Rows: rows}
}

// Empty returns the explicit empty source loaders hand back on failure.
func Empty(name string) *Source {
	return &Source{Name: name, Kind: KindTabular}
}

// FromTable classifies loader output. A table whose only column is
// ContentColumn becomes a text source holding the first row's value.
func FromTable(name string, columns []string, rows []Row) *Source {
	if len(columns) == 1 && columns[0] == ContentColumn {
		content := ""
		if len(rows) > 0 {
			if v := rows[0][ContentColumn]; v != nil {
				content = fmt.Sprint(v)
			}
		}
		return NewText(name, content)
	}
	return NewTable(name, columns, rows)
}

// IsText reports whether the source is free text.
func (s *Source) IsText() bool {
	return s.Kind == KindText
}

// IsEmpty reports whether the source carries no data at all.
func (s *Source) IsEmpty() bool {
	if s.Kind == KindText {
		return s.Content == ""
	}
	return len(s.Columns) == 0 && len(s.Rows) == 0
}

// Shape returns the table dimensions. Text sources report (1, 1), the
// shape of their single Content cell.
func (s *Source) Shape() Shape {
	if s.Kind == KindText {
		return Shape{Rows: 1, Cols: 1}
	}
	return Shape{Rows: len(s.Rows), Cols: len(s.Columns)}
}

// Cell returns the value at (row, column), or nil when absent.
func (s *Source) Cell(row int, column string) any {
	if row < 0 || row >= len(s.Rows) {
		return nil
	}
	return s.Rows[row][column]
}

// String renders the source for prompts and mixed-kind reports: text is
// returned verbatim, tables as CSV-like lines.
func (s *Source) String() string {
	if s.Kind == KindText {
		return s.Content
	}
	if len(s.Columns) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(s.Columns, ","))
	sb.WriteByte('\n')
	for _, row := range s.Rows {
		for i, col := range s.Columns {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(FormatPlain(row[col]))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
