package compare

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docdiff/docdiff/internal/model"
)

// Report literals. Front ends and tests match on these, keep them stable.
const (
	msgIdenticalText    = "No differences in text content."
	msgDifferentText    = "Differences found in text content."
	msgIdenticalTabular = "No differences in tabular content."
	msgDifferentTabular = "Differences found in tabular content."
	msgShapeMismatch    = "The files have different shapes: %s vs %s"
	msgColumnMismatch   = "The files have different column names."
	msgFailed           = "Comparison failed: %v"
)

// Outcome classifies a pair comparison.
type Outcome uint8

const (
	IdenticalText Outcome = iota
	DifferentText
	IdenticalTabular
	DifferentTabular
	Failed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case IdenticalText:
		return "identical_text"
	case DifferentText:
		return "different_text"
	case IdenticalTabular:
		return "identical_tabular"
	case DifferentTabular:
		return "different_tabular"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ShapeMismatch annotates a pair whose tables have different dimensions.
type ShapeMismatch struct {
	Left  model.Shape
	Right model.Shape
}

// ColumnMismatch annotates a pair whose column sequences differ. Both lists
// are the sources' original columns, before reindexing.
type ColumnMismatch struct {
	Left  []string
	Right []string
}

// CellDiff is one position where the reindexed cells are not equal.
type CellDiff struct {
	Row    int // zero-based
	Column string
	Left   any
	Right  any
}

// PairResult is the comparison of source Left with source Right (1-based).
type PairResult struct {
	Left    int
	Right   int
	Outcome Outcome

	// LeftText and RightText carry the full contents for DifferentText and
	// for mixed-kind pairs, where both renderings are shown.
	LeftText  string
	RightText string
	Mixed     bool

	Shape   *ShapeMismatch
	Columns *ColumnMismatch
	Cells   []CellDiff

	// Err is set when Outcome is Failed.
	Err error
}

// Identical reports whether the pair has no differences and no annotations.
func (p *PairResult) Identical() bool {
	switch p.Outcome {
	case IdenticalText:
		return true
	case IdenticalTabular:
		return p.Shape == nil && p.Columns == nil
	default:
		return false
	}
}

// Header returns the section header line.
func (p *PairResult) Header() string {
	return fmt.Sprintf("Comparing source %d with source %d:", p.Left, p.Right)
}

// Body renders the pair result without its header.
func (p *PairResult) Body() string {
	var lines []string

	switch p.Outcome {
	case Failed:
		return fmt.Sprintf(msgFailed, p.Err)

	case IdenticalText:
		return msgIdenticalText

	case DifferentText:
		lines = append(lines,
			msgDifferentText,
			fmt.Sprintf("Source %d content:", p.Left), p.LeftText,
			fmt.Sprintf("Source %d content:", p.Right), p.RightText,
		)
		return strings.Join(lines, "\n")
	}

	if p.Mixed {
		lines = append(lines,
			msgDifferentTabular,
			fmt.Sprintf("Source %d content:", p.Left), p.LeftText,
			fmt.Sprintf("Source %d content:", p.Right), p.RightText,
		)
		return strings.Join(lines, "\n")
	}

	if p.Shape != nil {
		lines = append(lines, fmt.Sprintf(msgShapeMismatch, p.Shape.Left, p.Shape.Right))
	}
	if p.Columns != nil {
		lines = append(lines,
			msgColumnMismatch,
			fmt.Sprintf("Source %d columns: %s", p.Left, FormatColumns(p.Columns.Left)),
			fmt.Sprintf("Source %d columns: %s", p.Right, FormatColumns(p.Columns.Right)),
		)
	}

	if p.Outcome == IdenticalTabular {
		lines = append(lines, msgIdenticalTabular)
		return strings.Join(lines, "\n")
	}

	lines = append(lines, msgDifferentTabular)
	lastRow := -1
	for _, c := range p.Cells {
		if c.Row != lastRow {
			lines = append(lines, fmt.Sprintf("Row %d:", c.Row+1))
			lastRow = c.Row
		}
		lines = append(lines, fmt.Sprintf("  %s: %s vs %s", c.Column, model.Format(c.Left), model.Format(c.Right)))
	}
	return strings.Join(lines, "\n")
}

// String renders the full pair section: header, body, blank line.
func (p *PairResult) String() string {
	return p.Header() + "\n" + p.Body() + "\n\n"
}

// Report is the outcome of comparing two or more sources.
type Report struct {
	Sources int
	Pairs   []PairResult
}

// String renders every pair section in enumeration order.
func (r *Report) String() string {
	var sb strings.Builder
	for i := range r.Pairs {
		sb.WriteString(r.Pairs[i].String())
	}
	return sb.String()
}

// Failures returns the pairs that could not be compared.
func (r *Report) Failures() []PairResult {
	var out []PairResult
	for _, p := range r.Pairs {
		if p.Outcome == Failed {
			out = append(out, p)
		}
	}
	return out
}

// Identical reports whether every pair is identical.
func (r *Report) Identical() bool {
	for i := range r.Pairs {
		if !r.Pairs[i].Identical() {
			return false
		}
	}
	return true
}

// Summary describes a single source instead of a comparison.
type Summary struct {
	Source      *model.Source
	PreviewRows int
}

// String renders the single-source summary.
func (s *Summary) String() string {
	src := s.Source
	if src.IsText() {
		return "Single file content:\n" + src.Content
	}

	n := s.PreviewRows
	if n <= 0 || n > len(src.Rows) {
		n = len(src.Rows)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Single DataFrame shape: %s\n", src.Shape()))
	sb.WriteString(fmt.Sprintf("Column names: %s\n", FormatColumns(src.Columns)))
	sb.WriteString("Data preview:\n")
	sb.WriteString(renderTable(src.Columns, src.Rows[:n]))
	return sb.String()
}

// Result holds either a Summary (one source) or a Report (two or more).
type Result struct {
	Summary *Summary
	Report  *Report
}

// String renders whichever half is set.
func (r *Result) String() string {
	if r.Summary != nil {
		return r.Summary.String()
	}
	if r.Report != nil {
		return r.Report.String()
	}
	return ""
}

// FormatColumns renders a column list as ["a", "b"].
func FormatColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = strconv.Quote(c)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
