package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/docdiff/docdiff/internal/model"
	derrors "github.com/docdiff/docdiff/pkg/errors"
)

// oleMagic starts every compound document, which is how legacy BIFF .xls
// workbooks are stored.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// isLegacyWorkbook reports whether path is a BIFF workbook rather than an
// OOXML zip.
func isLegacyWorkbook(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(oleMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(head, oleMagic), nil
}

// readXLSX reads the first sheet of a workbook. The first row is the header.
// A .xls name holding an OOXML workbook is read normally; a BIFF workbook
// is reported as unsupported.
func readXLSX(ctx context.Context, path string) (*model.Source, error) {
	legacy, err := isLegacyWorkbook(path)
	if err != nil {
		return nil, err
	}
	if legacy {
		return nil, derrors.UnsupportedFormat(path).
			WithContext("reason", "legacy BIFF workbook, save it as .xlsx")
	}

	xlFile, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer xlFile.Close()

	sheetName := xlFile.GetSheetName(0)
	if sheetName == "" {
		sheetList := xlFile.GetSheetList()
		if len(sheetList) == 0 {
			return nil, fmt.Errorf("no sheets found in xlsx file")
		}
		sheetName = sheetList[0]
	}

	rows, err := xlFile.Rows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return model.FromTable(path, nil, nil), nil
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	columns := uniqueColumns(header)

	var out []model.Row
	for rowNum := 2; rows.Next(); rowNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		out = append(out, buildRow(columns, cols))
	}
	if err := rows.Error(); err != nil {
		return nil, err
	}

	return model.FromTable(path, columns, out), nil
}
