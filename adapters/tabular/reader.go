// Package tabular reads the delimited source files (CSV, with XLSX tolerated
// for hand-exported batches) into raw string tables for the merge engine.
package tabular

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"aadhaarlens/domain/core"
	apperrors "aadhaarlens/internal/errors"

	"github.com/xuri/excelize/v2"
)

// Table is a raw tabular file: a header row plus string records. Numeric
// coercion happens downstream, where per-row failures are a tolerated loss.
type Table struct {
	Path    string
	Headers []string
	Records [][]string
}

// ColumnIndex returns the position of a header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// RequireColumns verifies every named column exists.
func (t *Table) RequireColumns(names ...string) error {
	for _, name := range names {
		if t.ColumnIndex(name) < 0 {
			return core.NewMissingColumnError(filepath.Base(t.Path), name)
		}
	}
	return nil
}

// FileReader handles reading a single CSV or XLSX file.
type FileReader struct {
	filePath string
	fileType string // "csv" or "xlsx"
}

// NewFileReader creates a reader for filePath, dispatching on extension.
func NewFileReader(filePath string) *FileReader {
	fileType := "csv"
	if strings.ToLower(filepath.Ext(filePath)) == ".xlsx" {
		fileType = "xlsx"
	}
	return &FileReader{filePath: filePath, fileType: fileType}
}

// Read loads the file into a Table.
func (r *FileReader) Read() (*Table, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	switch r.fileType {
	case "csv":
		return r.readCSV()
	case "xlsx":
		return r.readXLSX()
	default:
		return nil, apperrors.InvalidInput("unsupported file type: " + r.fileType)
	}
}

func (r *FileReader) readCSV() (*Table, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // ragged rows are padded below

	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file %s: %w", r.filePath, err)
	}
	log.Printf("[Tabular] CSV %s read in %.2fms (%d rows)",
		filepath.Base(r.filePath), float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))

	return r.assemble(rows)
}

func (r *FileReader) readXLSX() (*Table, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	log.Printf("[Tabular] XLSX %s sheet %s (%d rows)", filepath.Base(r.filePath), sheet, len(rows))

	return r.assemble(rows)
}

func (r *FileReader) assemble(rows [][]string) (*Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s needs a header row and at least one data row", core.ErrEmptyTable, r.filePath)
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	records := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < len(headers) {
			padded := make([]string, len(headers))
			copy(padded, row)
			row = padded
		}
		records = append(records, row)
	}

	return &Table{Path: r.filePath, Headers: headers, Records: records}, nil
}

// ReadDir loads every CSV/XLSX file in dir. Files concatenate downstream
// without deduplication; overlapping file sets are the caller's problem.
// A directory yielding zero files is a configuration error, never a silent
// empty result.
func ReadDir(dir string, source string) ([]*Table, error) {
	var paths []string
	for _, pattern := range []string{"*.csv", "*.xlsx"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, core.NewNoDataFoundError(source, dir)
	}

	tables := make([]*Table, 0, len(paths))
	for _, path := range paths {
		table, err := NewFileReader(path).Read()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		tables = append(tables, table)
	}

	log.Printf("[Tabular] Loaded %d file(s) for %s from %s", len(tables), source, dir)
	return tables, nil
}
