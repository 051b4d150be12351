package compare

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docdiff/docdiff/internal/model"
	derrors "github.com/docdiff/docdiff/pkg/errors"
)

func table(name string, cols []string, rows ...[]any) *model.Source {
	out := make([]model.Row, len(rows))
	for i, r := range rows {
		row := make(model.Row, len(cols))
		for j, c := range cols {
			row[c] = r[j]
		}
		out[i] = row
	}
	return model.NewTable(name, cols, out)
}

func TestCompare_NoSources(t *testing.T) {
	_, err := Compare(nil)
	if !errors.Is(err, derrors.ErrInsufficientSources) {
		t.Fatalf("Expected InsufficientSources, got %v", err)
	}
}

func TestCompare_SingleSourceIsSummary(t *testing.T) {
	res, err := Compare([]*model.Source{model.NewText("a.txt", "hello")})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if res.Report != nil || res.Summary == nil {
		t.Fatal("Expected a summary and no report for one source")
	}
	if got := res.String(); got != "Single file content:\nhello" {
		t.Errorf("Unexpected summary: %q", got)
	}
}

func TestCompare_SingleTableSummary(t *testing.T) {
	src := table("a.csv", []string{"id", "name"},
		[]any{int64(1), "x"}, []any{int64(2), "y"}, []any{int64(3), "z"},
		[]any{int64(4), "w"}, []any{int64(5), "v"}, []any{int64(6), "u"},
	)
	res, err := Compare([]*model.Source{src})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}

	out := res.String()
	for _, want := range []string{
		"Single DataFrame shape: (6, 2)\n",
		"Column names: [\"id\", \"name\"]\n",
		"Data preview:\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in summary:\n%s", want, out)
		}
	}

	preview := out[strings.Index(out, "Data preview:\n")+len("Data preview:\n"):]
	lines := strings.Split(preview, "\n")
	if len(lines) != 6 {
		t.Fatalf("Expected header plus 5 rows, got %d lines:\n%s", len(lines), preview)
	}
	if lines[0] != "id  name" {
		t.Errorf("Unexpected header line %q", lines[0])
	}
	if lines[1] != " 1     x" {
		t.Errorf("Unexpected first row %q", lines[1])
	}
	if strings.Contains(preview, "u") {
		t.Error("Sixth row must not be previewed")
	}
}

func TestCompare_ScenarioA_IdenticalText(t *testing.T) {
	out, err := Render([]*model.Source{model.NewText("a", "hello"), model.NewText("b", "hello")})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := "Comparing source 1 with source 2:\nNo differences in text content.\n\n"
	if out != want {
		t.Errorf("Expected %q, got %q", want, out)
	}
}

func TestCompare_ScenarioB_DifferentText(t *testing.T) {
	out, err := Render([]*model.Source{model.NewText("a", "hello"), model.NewText("b", "world")})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, "Differences found in text content.") {
		t.Errorf("Missing difference line:\n%s", out)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("Both contents must be shown:\n%s", out)
	}
	if strings.Index(out, "hello") > strings.Index(out, "world") {
		t.Error("Left content must precede right content")
	}
}

func TestCompare_ScenarioC_OneCell(t *testing.T) {
	a := table("a", []string{"id", "name"}, []any{int64(1), "x"}, []any{int64(2), "y"})
	b := table("b", []string{"id", "name"}, []any{int64(1), "x"}, []any{int64(2), "z"})

	res, err := Compare([]*model.Source{a, b})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	pair := res.Report.Pairs[0]
	if pair.Outcome != DifferentTabular {
		t.Fatalf("Expected DifferentTabular, got %s", pair.Outcome)
	}
	if len(pair.Cells) != 1 {
		t.Fatalf("Expected 1 differing cell, got %d", len(pair.Cells))
	}
	c := pair.Cells[0]
	if c.Row != 1 || c.Column != "name" || c.Left != "y" || c.Right != "z" {
		t.Errorf("Unexpected cell diff %+v", c)
	}

	want := "Comparing source 1 with source 2:\n" +
		"Differences found in tabular content.\n" +
		"Row 2:\n" +
		"  name: \"y\" vs \"z\"\n\n"
	if got := res.String(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestCompare_ScenarioD_ColumnMismatch(t *testing.T) {
	a := table("a", []string{"id", "name"}, []any{int64(1), "x"})
	b := table("b", []string{"id", "age"}, []any{int64(1), int64(30)})

	res, err := Compare([]*model.Source{a, b})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	pair := res.Report.Pairs[0]
	if pair.Columns == nil {
		t.Fatal("Expected a column mismatch annotation")
	}
	if pair.Shape != nil {
		t.Error("Shapes are equal, no shape annotation expected")
	}

	out := res.String()
	for _, want := range []string{
		"The files have different column names.",
		`Source 1 columns: ["id", "name"]`,
		`Source 2 columns: ["id", "age"]`,
		"  age: null vs 30",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "  id:") {
		t.Error("Intersecting id column is equal and must not be listed")
	}
	if strings.Contains(out, "  name:") {
		t.Error("Left-only column must be dropped from the cell diff")
	}

	added, removed := pair.Columns.ColumnDrift()
	if len(added) != 1 || added[0] != "age" || len(removed) != 1 || removed[0] != "name" {
		t.Errorf("Unexpected drift: added=%v removed=%v", added, removed)
	}
}

func TestCompare_ScenarioE_ThreeIdentical(t *testing.T) {
	mk := func() *model.Source {
		return table("t", []string{"id"}, []any{int64(1)}, []any{int64(2)})
	}
	res, err := Compare([]*model.Source{mk(), mk(), mk()})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(res.Report.Pairs) != 3 {
		t.Fatalf("Expected 3 pairs, got %d", len(res.Report.Pairs))
	}
	for _, p := range res.Report.Pairs {
		if p.Outcome != IdenticalTabular || !p.Identical() {
			t.Errorf("Pair (%d,%d) not identical: %s", p.Left, p.Right, p.Outcome)
		}
	}
	if !res.Report.Identical() {
		t.Error("Report should be identical")
	}
}

func TestCompare_PairCountAndOrder(t *testing.T) {
	var sources []*model.Source
	for i := 0; i < 5; i++ {
		sources = append(sources, model.NewText("s", "same"))
	}
	res, err := Compare(sources)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(res.Report.Pairs) != 10 {
		t.Fatalf("Expected 10 pairs, got %d", len(res.Report.Pairs))
	}

	idx := 0
	for i := 1; i <= 5; i++ {
		for j := i + 1; j <= 5; j++ {
			p := res.Report.Pairs[idx]
			if p.Left != i || p.Right != j {
				t.Errorf("Pair %d: expected (%d,%d), got (%d,%d)", idx, i, j, p.Left, p.Right)
			}
			idx++
		}
	}
	if n := strings.Count(res.String(), "Comparing source "); n != 10 {
		t.Errorf("Expected 10 sections, got %d", n)
	}
}

func TestCompare_Deterministic(t *testing.T) {
	sources := []*model.Source{
		table("a", []string{"id", "v"}, []any{int64(1), 1.5}, []any{int64(2), nil}),
		table("b", []string{"v", "id"}, []any{2.5, int64(1)}, []any{nil, int64(3)}),
		model.NewText("c", "text"),
	}
	first, err := Render(sources)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := Render(sources)
		if again != first {
			t.Fatalf("Render is not deterministic:\n%s\n---\n%s", first, again)
		}
	}
}

func TestCompare_CellLineCountMatchesDiffs(t *testing.T) {
	a := table("a", []string{"a", "b", "c"},
		[]any{int64(1), int64(2), int64(3)},
		[]any{int64(4), int64(5), int64(6)},
		[]any{int64(7), int64(8), int64(9)},
	)
	b := table("b", []string{"a", "b", "c"},
		[]any{int64(1), int64(0), int64(3)},
		[]any{int64(4), int64(5), int64(6)},
		[]any{"7", int64(8), nil},
	)
	res, _ := Compare([]*model.Source{a, b})
	pair := res.Report.Pairs[0]

	lines := 0
	for _, l := range strings.Split(pair.Body(), "\n") {
		if strings.HasPrefix(l, "  ") {
			lines++
		}
	}
	if lines != len(pair.Cells) || lines != 3 {
		t.Errorf("Expected 3 cell lines matching %d diffs, got %d", len(pair.Cells), lines)
	}
	if strings.Contains(pair.Body(), "Row 2:") {
		t.Error("Rows without differences must be omitted")
	}
}

func TestCompare_TypeSensitiveEquality(t *testing.T) {
	a := table("a", []string{"v"}, []any{int64(1)})
	b := table("b", []string{"v"}, []any{1.0})
	res, _ := Compare([]*model.Source{a, b})
	if res.Report.Pairs[0].Outcome != DifferentTabular {
		t.Error("int 1 and float 1.0 must differ")
	}

	c := table("c", []string{"v"}, []any{nil})
	d := table("d", []string{"v"}, []any{nil})
	res, _ = Compare([]*model.Source{c, d})
	if res.Report.Pairs[0].Outcome != IdenticalTabular {
		t.Error("null must equal null")
	}
}

func TestCompare_ShapeMismatchComparesCommonRows(t *testing.T) {
	a := table("a", []string{"id"}, []any{int64(1)}, []any{int64(2)})
	b := table("b", []string{"id"}, []any{int64(1)}, []any{int64(2)}, []any{int64(3)})
	res, _ := Compare([]*model.Source{a, b})
	pair := res.Report.Pairs[0]

	if pair.Shape == nil {
		t.Fatal("Expected shape annotation")
	}
	if pair.Outcome != IdenticalTabular {
		t.Errorf("Common rows are equal, got %s", pair.Outcome)
	}
	out := pair.Body()
	if !strings.HasPrefix(out, "The files have different shapes: (2, 1) vs (3, 1)") {
		t.Errorf("Unexpected body:\n%s", out)
	}
	if !strings.HasSuffix(out, "No differences in tabular content.") {
		t.Errorf("Annotations are additive to the cell result:\n%s", out)
	}
	if pair.Identical() {
		t.Error("Annotated pair is not identical")
	}
}

func TestCompare_MixedKinds(t *testing.T) {
	a := model.NewText("a", "hello")
	b := table("b", []string{"id"}, []any{int64(1)})
	res, _ := Compare([]*model.Source{a, b})
	pair := res.Report.Pairs[0]
	if pair.Outcome != DifferentTabular || !pair.Mixed {
		t.Fatalf("Expected mixed DifferentTabular, got %s", pair.Outcome)
	}
	body := pair.Body()
	if !strings.Contains(body, "hello") || !strings.Contains(body, "id\n1") {
		t.Errorf("Both renderings expected:\n%s", body)
	}
}

func TestCompare_FailedPairDoesNotAbort(t *testing.T) {
	bad := table("bad", []string{"id", "id"}, []any{int64(1), int64(2)})
	good := table("good", []string{"id"}, []any{int64(1)})
	other := table("other", []string{"id"}, []any{int64(1)})

	res, err := Compare([]*model.Source{bad, good, other})
	if err != nil {
		t.Fatalf("Pair failures must not fail the report: %v", err)
	}
	if len(res.Report.Pairs) != 3 {
		t.Fatalf("Expected 3 pairs, got %d", len(res.Report.Pairs))
	}
	failures := res.Report.Failures()
	if len(failures) != 2 {
		t.Fatalf("Expected 2 failed pairs, got %d", len(failures))
	}
	if !derrors.IsCode(failures[0].Err, derrors.CodeComparisonFailed) {
		t.Errorf("Expected ComparisonFailed, got %v", failures[0].Err)
	}
	if res.Report.Pairs[2].Outcome != IdenticalTabular {
		t.Errorf("Pair (2,3) should still succeed, got %s", res.Report.Pairs[2].Outcome)
	}
	if !strings.Contains(res.String(), "Comparison failed: ") {
		t.Error("Failure must be reported inline")
	}
}

func TestCompare_NonScalarCellFails(t *testing.T) {
	a := table("a", []string{"v"}, []any{[]int{1}})
	b := table("b", []string{"v"}, []any{int64(1)})
	res, _ := Compare([]*model.Source{a, b})
	if res.Report.Pairs[0].Outcome != Failed {
		t.Errorf("Expected Failed, got %s", res.Report.Pairs[0].Outcome)
	}
}

func TestCompare_DoesNotMutateSources(t *testing.T) {
	a := table("a", []string{"id", "name"}, []any{int64(1), "x"})
	b := table("b", []string{"id", "age"}, []any{int64(1), int64(3)})
	_, _ = Compare([]*model.Source{a, b})

	if len(a.Columns) != 2 || a.Columns[1] != "name" {
		t.Errorf("Left columns mutated: %v", a.Columns)
	}
	if _, ok := a.Rows[0]["age"]; ok {
		t.Error("Reindexing must not write into the left rows")
	}
}

func TestEngine_CompletesUnderCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := []*model.Source{
		model.NewText("a", "x"),
		model.NewText("b", "y"),
		model.NewText("c", "x"),
	}
	for _, workers := range []int{1, 4} {
		res, err := New(WithWorkers(workers)).Compare(ctx, sources)
		if err != nil {
			t.Fatalf("workers=%d: unexpected error %v", workers, err)
		}
		if len(res.Report.Pairs) != 3 {
			t.Fatalf("workers=%d: expected 3 pairs, got %d", workers, len(res.Report.Pairs))
		}
		want, _ := Render(sources)
		if got := res.String(); got != want {
			t.Errorf("workers=%d: output differs from the sequential render", workers)
		}
	}
}
