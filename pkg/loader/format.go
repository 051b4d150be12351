package loader

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies how a path is decoded.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatTSV
	FormatXLSX
	FormatPDF
	FormatDOCX
	FormatText
	FormatSQL
	FormatParquet
	FormatSQLQuery
	FormatDuckDB
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatTSV:
		return "tsv"
	case FormatXLSX:
		return "xlsx"
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatText:
		return "text"
	case FormatSQL:
		return "sql"
	case FormatParquet:
		return "parquet"
	case FormatSQLQuery:
		return "sql-query"
	case FormatDuckDB:
		return "duckdb"
	default:
		return "unknown"
	}
}

// DetectFormat picks a format from a URI scheme or file extension. A
// trailing .gz is ignored for the formats that can be streamed.
func DetectFormat(uri string) Format {
	switch {
	case strings.HasPrefix(uri, "sql://"):
		return FormatSQLQuery
	case strings.HasPrefix(uri, "duckdb://"):
		return FormatDuckDB
	}

	ext := BaseFormat(uri)
	gz := IsGzipFile(uri)
	switch ext {
	case ".csv":
		return FormatCSV
	case ".tsv", ".tab":
		return FormatTSV
	case ".txt", ".md", ".text", ".log":
		return FormatText
	}
	if gz {
		return FormatUnknown
	}
	switch ext {
	case ".xlsx", ".xlsm", ".xls":
		return FormatXLSX
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".sql":
		return FormatSQL
	case ".parquet", ".pq":
		return FormatParquet
	}
	return FormatUnknown
}

// openFile opens a file, decompressing it when the name ends in .gz. The
// caller must call the returned cleanup function.
func openFile(path string) (io.Reader, func() error, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	if IsGzipFile(path) {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, nil, err
		}
		cleanup := func() error {
			gzReader.Close()
			return file.Close()
		}
		return gzReader, cleanup, nil
	}

	return file, file.Close, nil
}

// IsGzipFile returns true if the file path indicates gzip compression.
func IsGzipFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// StripCompression removes a .gz suffix from a path.
func StripCompression(path string) string {
	if IsGzipFile(path) {
		return path[:len(path)-3]
	}
	return path
}

// BaseFormat extracts the lower-cased extension after stripping compression.
// e.g., "file.csv.gz" -> ".csv"
func BaseFormat(path string) string {
	return strings.ToLower(filepath.Ext(StripCompression(path)))
}
