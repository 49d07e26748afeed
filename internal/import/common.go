package import_pkg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spend-intake/internal/cluster"
)

var (
	// ErrNoHeader is returned when no row names both a supplier and a spend
	// column.
	ErrNoHeader = errors.New("no supplier/spend header row found")

	// ErrNoItemHeader is returned when no row names an item code column.
	ErrNoItemHeader = errors.New("no item code header row found")

	// ErrUnsupportedFormat is returned for file extensions the loader does
	// not read.
	ErrUnsupportedFormat = errors.New("unsupported input format")
)

// headerScanRows bounds how far down the sheet the header row may sit.
const headerScanRows = 20

var (
	nameHeaders  = []string{"supplier name", "supplier", "vendor name", "vendor", "name"}
	spendHeaders = []string{"spend", "total spend", "spend amount", "amount"}
	itemHeaders  = []string{"item code", "item", "item number", "part number", "code"}
)

// table is raw cell text plus the 1-based source line of each row.
type table struct {
	rows  [][]string
	lines []int
}

// toRecords locates the header row and converts every data row below it.
// Fully blank rows are skipped; OriginalOrder counts the rows kept.
func (t table) toRecords() ([]cluster.Record, error) {
	headerRow, nameCol, spendCol := -1, -1, -1
	for i := 0; i < len(t.rows) && i < headerScanRows; i++ {
		nameCol = findColumn(t.rows[i], nameHeaders)
		spendCol = findColumn(t.rows[i], spendHeaders)
		if nameCol >= 0 && spendCol >= 0 && nameCol != spendCol {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, ErrNoHeader
	}

	records := make([]cluster.Record, 0, len(t.rows)-headerRow-1)
	for i := headerRow + 1; i < len(t.rows); i++ {
		row := t.rows[i]
		name := strings.TrimSpace(cell(row, nameCol))
		rawSpend := cell(row, spendCol)
		if name == "" && strings.TrimSpace(rawSpend) == "" {
			continue
		}

		spend, err := parseSpend(rawSpend)
		if err != nil {
			return nil, &cluster.SpendError{Index: t.lines[i], Name: name, Spend: spend, Raw: err.raw}
		}

		records = append(records, cluster.Record{
			Name:          name,
			Spend:         spend,
			OriginalOrder: len(records) + 1,
		})
	}
	return records, nil
}

// toItemCodes locates the item code header and returns the non-blank codes
// below it, trimmed, in file order.
func (t table) toItemCodes() ([]string, error) {
	headerRow, codeCol := -1, -1
	for i := 0; i < len(t.rows) && i < headerScanRows; i++ {
		if codeCol = findColumn(t.rows[i], itemHeaders); codeCol >= 0 {
			headerRow = i
			break
		}
	}
	if headerRow < 0 {
		return nil, ErrNoItemHeader
	}

	var codes []string
	for _, row := range t.rows[headerRow+1:] {
		if code := strings.TrimSpace(cell(row, codeCol)); code != "" {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// findColumn returns the first column whose header matches one of the
// candidates, trying candidates in priority order.
func findColumn(row []string, candidates []string) int {
	for _, want := range candidates {
		for col, header := range row {
			if normalizeHeader(header) == want {
				return col
			}
		}
	}
	return -1
}

func normalizeHeader(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}

// spendParseError carries the raw text when it was not a number. raw is
// empty for numeric values that are out of range.
type spendParseError struct {
	raw string
}

// parseSpend accepts plain numbers, thousands separators, currency symbols
// and accounting negatives written in parentheses. Blank and "-" are zero.
// Negative, NaN and infinite values are rejected.
func parseSpend(raw string) (float64, *spendParseError) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return 0, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.NewReplacer(",", "", "$", "", "£", "", "€", "", " ", "").Replace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &spendParseError{raw: raw}
	}
	if negative {
		v = -v
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &spendParseError{raw: raw}
	}
	if v < 0 {
		return v, &spendParseError{}
	}
	return v, nil
}

func (e *spendParseError) Error() string {
	return fmt.Sprintf("invalid spend %q", e.raw)
}
