package loader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docdiff/docdiff/internal/model"
)

const sniffSize = 64 * 1024

// readDelimited parses a CSV/TSV stream. The first record is the header.
// When delim is zero the delimiter is sniffed from the first 64KB.
func readDelimited(ctx context.Context, r io.Reader, delim rune) ([]string, []model.Row, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	if delim == 0 {
		sample, err := br.Peek(sniffSize)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, nil, err
		}
		delim = sniffDelimiter(sample)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("header: %w", err)
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}
	columns := uniqueColumns(header)

	var rows []model.Row
	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, buildRow(columns, record))
	}
	return columns, rows, nil
}

// buildRow types each raw cell. Missing trailing cells are null and extra
// cells are dropped.
func buildRow(columns, record []string) model.Row {
	row := make(model.Row, len(columns))
	for i, col := range columns {
		if i < len(record) {
			row[col] = model.ParseCell(record[i])
		} else {
			row[col] = nil
		}
	}
	return row
}

// uniqueColumns renames repeated header names to name.1, name.2 and fills
// blank names with Unnamed: <index>, so every column is addressable.
func uniqueColumns(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, h := range header {
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s.%d", h, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
