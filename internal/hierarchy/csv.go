package hierarchy

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		parentSpend := ""
		if row.ParentSpend != nil {
			parentSpend = formatAmount(*row.ParentSpend)
		}
		record := []string{
			strconv.Itoa(row.OriginalOrder),
			strconv.Itoa(row.ParentOrder),
			row.displayName(),
			formatAmount(row.Spend),
			parentSpend,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
