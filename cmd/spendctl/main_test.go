package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/spend-intake/internal/audit"
	"github.com/spend-intake/internal/cluster"
	"github.com/spend-intake/internal/hierarchy"
)

func writeSuppliers(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suppliers.csv")
	content := "Supplier Name,Spend\nCorp Acme,50\nAcme Corp,100\nGlobex,75\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SPEND_CONFIG", "")
	t.Setenv("SPEND_THRESHOLD", "")

	var out bytes.Buffer
	root := newRootCmd(&app{})
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestClusterToStdout(t *testing.T) {
	out, err := run(t, "cluster", "--input", writeSuppliers(t), "--output", "-")
	require.NoError(t, err)

	lines, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		hierarchy.Header,
		{"2", "2", "Acme Corp", "100.00", "150.00"},
		{"1", "2", "  Corp Acme", "50.00", ""},
		{"3", "3", "Globex", "75.00", "75.00"},
	}, lines)
}

func TestClusterToXLSX(t *testing.T) {
	output := filepath.Join(t.TempDir(), "report.xlsx")
	_, err := run(t, "cluster", "--input", writeSuppliers(t), "--output", output, "--order", "input")
	require.NoError(t, err)

	f, err := excelize.OpenFile(output)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(hierarchy.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Acme Corp", rows[1][2])
	assert.Equal(t, "Globex", rows[3][2])
}

func TestClusterRejectsBadFlags(t *testing.T) {
	input := writeSuppliers(t)

	_, err := run(t, "cluster", "--input", input, "--threshold", "101", "--output", "-")
	assert.Error(t, err)

	_, err = run(t, "cluster", "--input", input, "--gate", "phonetic", "--output", "-")
	assert.Error(t, err)

	_, err = run(t, "cluster", "--input", input, "--output", filepath.Join(t.TempDir(), "report.pdf"))
	assert.Error(t, err)

	_, err = run(t, "cluster", "--output", "-")
	assert.Error(t, err, "input is required")
}

func TestLookup(t *testing.T) {
	out, err := run(t, "lookup", "Corp Acme", "--input", writeSuppliers(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Corp Acme (row 1) belongs to Acme Corp (row 2)")
	assert.Contains(t, out, "Group total spend: 150.00 across 2 suppliers")

	_, err = run(t, "lookup", "Initech", "--input", writeSuppliers(t))
	assert.Error(t, err)
}

func TestEnvFileFlag(t *testing.T) {
	t.Setenv("SPEND_GATE", "")
	os.Unsetenv("SPEND_GATE")

	envFile := filepath.Join(t.TempDir(), "bad.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SPEND_GATE=phonetic\n"), 0o644))

	_, err := run(t, "--env-file", envFile, "cluster", "--input", writeSuppliers(t), "--output", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phonetic")

	os.Unsetenv("SPEND_GATE")
	_, err = run(t, "--env-file", filepath.Join(t.TempDir(), "absent.env"), "cluster", "--input", writeSuppliers(t), "--output", "-")
	assert.NoError(t, err)
}

func TestWriteAudit(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	history := []audit.Entry{
		{AuditEntry: cluster.AuditEntry{Kind: cluster.AuditAlreadyGrouped, Record: 4, Related: []int{1}, Detail: "kept in first group"}, RecordedAt: at},
		{AuditEntry: cluster.AuditEntry{Kind: cluster.AuditAmbiguousName, Record: 2, Detail: "2 rows named Acme"}, RecordedAt: at},
	}

	var out bytes.Buffer
	require.NoError(t, writeAudit(&out, "run-1", history))
	text := out.String()
	assert.Contains(t, text, "Run run-1: 2 audit entries")
	assert.Contains(t, text, "2024-03-01T12:00:00Z  already_grouped")
	assert.Contains(t, text, "kept in first group")
	assert.Contains(t, text, "ambiguous_name")
}
