package compare

import (
	"fmt"
	"sort"

	"github.com/docdiff/docdiff/internal/model"
	derrors "github.com/docdiff/docdiff/pkg/errors"
)

// comparePair applies the pair rules to sources left and right. i and j are
// the 1-based indices reported in the section header. Any failure, including
// a panic while inspecting malformed input, becomes a Failed result for this
// pair only.
func comparePair(left, right *model.Source, i, j int) (res PairResult) {
	res = PairResult{Left: i, Right: j}

	defer func() {
		if r := recover(); r != nil {
			res = PairResult{
				Left:    i,
				Right:   j,
				Outcome: Failed,
				Err:     derrors.ComparisonFailed(i, j, fmt.Errorf("panic: %v", r)),
			}
		}
	}()

	if left == nil || right == nil {
		res.Outcome = Failed
		res.Err = derrors.ComparisonFailed(i, j, fmt.Errorf("nil source"))
		return res
	}

	switch {
	case left.IsText() && right.IsText():
		compareText(&res, left, right)
	case left.IsText() != right.IsText():
		res.Outcome = DifferentTabular
		res.Mixed = true
		res.LeftText = left.String()
		res.RightText = right.String()
	default:
		if err := compareTables(&res, left, right); err != nil {
			res = PairResult{
				Left:    i,
				Right:   j,
				Outcome: Failed,
				Err:     derrors.ComparisonFailed(i, j, err),
			}
		}
	}
	return res
}

func compareText(res *PairResult, left, right *model.Source) {
	if left.Content == right.Content {
		res.Outcome = IdenticalText
		return
	}
	res.Outcome = DifferentText
	res.LeftText = left.Content
	res.RightText = right.Content
}

// compareTables reindexes left onto right's columns and diffs the cells of
// the rows both tables have. Shape and column annotations are computed from
// the original tables and are independent of the cell result.
func compareTables(res *PairResult, left, right *model.Source) error {
	if err := validateTable(left); err != nil {
		return err
	}
	if err := validateTable(right); err != nil {
		return err
	}

	ls, rs := left.Shape(), right.Shape()
	if ls != rs {
		res.Shape = &ShapeMismatch{Left: ls, Right: rs}
	}
	if !sameColumns(left.Columns, right.Columns) {
		res.Columns = &ColumnMismatch{Left: left.Columns, Right: right.Columns}
	}

	present := make(map[string]struct{}, len(left.Columns))
	for _, c := range left.Columns {
		present[c] = struct{}{}
	}

	rows := min(len(left.Rows), len(right.Rows))
	for r := 0; r < rows; r++ {
		for _, col := range right.Columns {
			var lv any
			if _, ok := present[col]; ok {
				lv, _ = model.Normalize(left.Rows[r][col])
			}
			rv, _ := model.Normalize(right.Rows[r][col])
			if !model.Equal(lv, rv) {
				res.Cells = append(res.Cells, CellDiff{Row: r, Column: col, Left: lv, Right: rv})
			}
		}
	}

	if len(res.Cells) > 0 {
		res.Outcome = DifferentTabular
	} else {
		res.Outcome = IdenticalTabular
	}
	return nil
}

// validateTable rejects tables the diff cannot reason about: duplicate
// column names and non-scalar cells.
func validateTable(s *model.Source) error {
	seen := make(map[string]struct{}, len(s.Columns))
	for _, c := range s.Columns {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("duplicate column %q in %s", c, sourceName(s))
		}
		seen[c] = struct{}{}
	}
	for r, row := range s.Rows {
		for _, c := range s.Columns {
			if _, err := model.Normalize(row[c]); err != nil {
				return fmt.Errorf("row %d column %q in %s: %w", r+1, c, sourceName(s), err)
			}
		}
	}
	return nil
}

func sourceName(s *model.Source) string {
	if s.Name == "" {
		return "source"
	}
	return s.Name
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ColumnDrift lists columns only present on one side, sorted.
func (c *ColumnMismatch) ColumnDrift() (added, removed []string) {
	leftSet := make(map[string]struct{}, len(c.Left))
	for _, col := range c.Left {
		leftSet[col] = struct{}{}
	}
	rightSet := make(map[string]struct{}, len(c.Right))
	for _, col := range c.Right {
		rightSet[col] = struct{}{}
		if _, ok := leftSet[col]; !ok {
			added = append(added, col)
		}
	}
	for _, col := range c.Left {
		if _, ok := rightSet[col]; !ok {
			removed = append(removed, col)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
