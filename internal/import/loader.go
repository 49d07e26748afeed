package import_pkg

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/spend-intake/internal/cluster"
)

// LoadFile reads supplier records from an .xlsx, .csv, .tsv or .txt file.
// sheet only applies to workbooks.
func LoadFile(path, sheet string) ([]cluster.Record, error) {
	t, err := loadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	records, err := t.toRecords()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// LoadItemCodes reads the item code column of a file in any format
// LoadFile accepts.
func LoadItemCodes(path, sheet string) ([]string, error) {
	t, err := loadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	codes, err := t.toItemCodes()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return codes, nil
}

func loadTable(path, sheet string) (table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".csv", ".tsv", ".txt":
	default:
		return table{}, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	f, err := os.Open(path)
	if err != nil {
		return table{}, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	var t table
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		t, err = readXLSXTable(f, sheet)
	default:
		t, err = readDelimitedTable(f)
	}
	if err != nil {
		return table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadXLSX reads supplier records from one sheet of a workbook on disk.
func LoadXLSX(path, sheet string) ([]cluster.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadXLSX(f, sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ReadXLSX reads supplier records from one sheet of a workbook. An empty
// sheet name selects the first sheet.
func ReadXLSX(r io.Reader, sheet string) ([]cluster.Record, error) {
	t, err := readXLSXTable(r, sheet)
	if err != nil {
		return nil, err
	}
	return t.toRecords()
}

func readXLSXTable(r io.Reader, sheet string) (table, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return table{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	if sheet == "" {
		sheet = wb.GetSheetName(0)
	}
	rows, err := wb.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return table{}, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	t := table{rows: rows, lines: make([]int, len(rows))}
	for i := range rows {
		t.lines[i] = i + 1
	}
	return t, nil
}

// ReadDelimited reads comma or tab separated text, picking the delimiter
// from the first non-blank line.
func ReadDelimited(r io.Reader) ([]cluster.Record, error) {
	t, err := readDelimitedTable(r)
	if err != nil {
		return nil, err
	}
	return t.toRecords()
}

func readDelimitedTable(r io.Reader) (table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return table{}, fmt.Errorf("failed to read input: %w", err)
	}
	return readCSVTable(strings.NewReader(string(data)), sniffDelimiter(string(data)))
}

// ReadCSV reads delimited text. Blank lines are skipped and rows may have
// differing field counts.
func ReadCSV(r io.Reader, delimiter rune) ([]cluster.Record, error) {
	t, err := readCSVTable(r, delimiter)
	if err != nil {
		return nil, err
	}
	return t.toRecords()
}

func readCSVTable(r io.Reader, delimiter rune) (table, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var t table
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return table{}, fmt.Errorf("failed to read CSV record: %w", err)
		}
		line, _ := reader.FieldPos(0)
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

func sniffDelimiter(data string) rune {
	for _, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Count(line, "\t") > strings.Count(line, ",") {
			return '\t'
		}
		return ','
	}
	return ','
}
