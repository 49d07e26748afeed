package import_pkg

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spend-intake/internal/cluster"
)

func TestParseSpend(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"-", 0, false},
		{"1234.5", 1234.5, false},
		{"1,234.50", 1234.5, false},
		{"$1,234.50", 1234.5, false},
		{"£ 99", 99, false},
		{"1e3", 1000, false},
		{"(12.00)", -12, true},
		{"-3", -3, true},
		{"n/a", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseSpend(tt.raw)
			if tt.wantErr {
				assert.NotNil(t, err)
			} else {
				assert.Nil(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCSV(t *testing.T) {
	input := "Supplier Name,Spend\nAcme Corp,\"1,000.00\"\n\n Globex ,250\nInitech,\n"

	records, err := ReadCSV(strings.NewReader(input), ',')
	require.NoError(t, err)
	assert.Equal(t, []cluster.Record{
		{Name: "Acme Corp", Spend: 1000, OriginalOrder: 1},
		{Name: "Globex", Spend: 250, OriginalOrder: 2},
		{Name: "Initech", Spend: 0, OriginalOrder: 3},
	}, records)
}

func TestReadCSVNegativeSpendReportsLine(t *testing.T) {
	input := "Supplier Name,Spend\nAcme,10\n\nGlobex,(5)\n"

	_, err := ReadCSV(strings.NewReader(input), ',')
	require.Error(t, err)
	assert.ErrorIs(t, err, cluster.ErrInvalidSpend)

	var spendErr *cluster.SpendError
	require.True(t, errors.As(err, &spendErr))
	assert.Equal(t, 4, spendErr.Index)
	assert.Equal(t, "Globex", spendErr.Name)
	assert.Equal(t, -5.0, spendErr.Spend)
}

func TestReadCSVNonNumericSpend(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Vendor,Amount\nAcme,lots\n"), ',')

	var spendErr *cluster.SpendError
	require.True(t, errors.As(err, &spendErr))
	assert.Equal(t, "lots", spendErr.Raw)
}

func TestReadDelimitedSniffsTabs(t *testing.T) {
	input := "\nSupplier Name\tSpend\tNotes\nAcme, Inc.\t12.5\tkeep the comma\n"

	records, err := ReadDelimited(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme, Inc.", records[0].Name)
	assert.Equal(t, 12.5, records[0].Spend)
}

func TestReadCSVNoHeader(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n"), ',')
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestHeaderPriority(t *testing.T) {
	row := []string{"Name", " SUPPLIER  NAME ", "Spend"}
	assert.Equal(t, 1, findColumn(row, nameHeaders))
	assert.Equal(t, 2, findColumn(row, spendHeaders))
}

func buildWorkbook(t *testing.T) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { f.Close() })

	require.NoError(t, f.SetSheetName("Sheet1", "AP 2023 Suppliers"))
	sheet := "AP 2023 Suppliers"
	require.NoError(t, f.SetCellValue(sheet, "A1", "Accounts payable extract"))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Supplier Name", "Spend"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]interface{}{"Acme Corp", 1234.5}))
	require.NoError(t, f.SetSheetRow(sheet, "A5", &[]interface{}{"Globex", "$1,000.00"}))
	require.NoError(t, f.SetSheetRow(sheet, "A7", &[]interface{}{"Initech"}))
	return f
}

func TestReadXLSX(t *testing.T) {
	buf, err := buildWorkbook(t).WriteToBuffer()
	require.NoError(t, err)

	records, err := ReadXLSX(buf, "AP 2023 Suppliers")
	require.NoError(t, err)
	assert.Equal(t, []cluster.Record{
		{Name: "Acme Corp", Spend: 1234.5, OriginalOrder: 1},
		{Name: "Globex", Spend: 1000, OriginalOrder: 2},
		{Name: "Initech", Spend: 0, OriginalOrder: 3},
	}, records)
}

func TestReadXLSXFirstSheetAndMissingSheet(t *testing.T) {
	f := buildWorkbook(t)
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	data := buf.Bytes()

	records, err := ReadXLSX(strings.NewReader(string(data)), "")
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = ReadXLSX(strings.NewReader(string(data)), "Missing")
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	tsv := filepath.Join(dir, "suppliers.tsv")
	require.NoError(t, os.WriteFile(tsv, []byte("Supplier Name\tSpend\nAcme\t5\n"), 0o644))
	records, err := LoadFile(tsv, "")
	require.NoError(t, err)
	assert.Equal(t, []cluster.Record{{Name: "Acme", Spend: 5, OriginalOrder: 1}}, records)

	xlsx := filepath.Join(dir, "suppliers.xlsx")
	require.NoError(t, buildWorkbook(t).SaveAs(xlsx))
	records, err = LoadFile(xlsx, "AP 2023 Suppliers")
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = LoadFile(filepath.Join(dir, "suppliers.json"), "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = LoadFile(filepath.Join(dir, "missing.csv"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadItemCodes(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "items.csv")
	content := "AP items export\n\nItem Code,Description\n ITM-001 ,Laptop\n,Blank code\nITM-002 (refurb),Dock\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0o644))

	codes, err := LoadItemCodes(csvPath, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ITM-001", "ITM-002 (refurb)"}, codes)

	noHeader := filepath.Join(dir, "suppliers.csv")
	require.NoError(t, os.WriteFile(noHeader, []byte("Supplier Name,Spend\nAcme,1\n"), 0o644))
	_, err = LoadItemCodes(noHeader, "")
	assert.ErrorIs(t, err, ErrNoItemHeader)

	_, err = LoadItemCodes(filepath.Join(dir, "items.json"), "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
