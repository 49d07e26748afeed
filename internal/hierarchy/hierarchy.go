// Package hierarchy lays clustered supplier groups out as parent and child
// rows and writes them as CSV or styled XLSX.
package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spend-intake/internal/cluster"
)

// Order selects how groups are sorted before emitting.
type Order string

const (
	// OrderInput keeps the order the groups were built in.
	OrderInput Order = "input"

	// OrderSpend sorts by the representative's own spend, highest first.
	OrderSpend Order = "spend"

	// OrderTotal sorts by the group's total spend, highest first.
	OrderTotal Order = "total"
)

// ParseOrder parses an order name. An empty string selects OrderSpend.
func ParseOrder(s string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderSpend:
		return OrderSpend, nil
	case OrderTotal:
		return OrderTotal, nil
	case OrderInput:
		return OrderInput, nil
	default:
		return "", fmt.Errorf("unknown order %q (want %q, %q or %q)", s, OrderSpend, OrderTotal, OrderInput)
	}
}

// Sort returns a sorted copy of groups. Ties keep build order.
func Sort(groups []cluster.Group, records []cluster.Record, order Order) []cluster.Group {
	out := append([]cluster.Group(nil), groups...)
	switch order {
	case OrderSpend:
		sort.SliceStable(out, func(i, j int) bool {
			return records[out[i].Representative].Spend > records[out[j].Representative].Spend
		})
	case OrderTotal:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].TotalSpend > out[j].TotalSpend
		})
	}
	return out
}

// Row is one line of the report.
type Row struct {
	OriginalOrder int
	// ParentOrder is the representative's OriginalOrder; it equals
	// OriginalOrder on parent rows.
	ParentOrder int
	Name        string
	Spend       float64

	// ParentSpend is the group's total spend, set on parent rows only.
	ParentSpend *float64
	Child       bool
}

// Rows flattens groups into a parent row followed by its member rows.
func Rows(groups []cluster.Group, records []cluster.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, g := range groups {
		parent := records[g.Representative]
		total := g.TotalSpend
		rows = append(rows, Row{
			OriginalOrder: parent.OriginalOrder,
			ParentOrder:   parent.OriginalOrder,
			Name:          parent.Name,
			Spend:         parent.Spend,
			ParentSpend:   &total,
		})
		for _, idx := range g.Members {
			member := records[idx]
			rows = append(rows, Row{
				OriginalOrder: member.OriginalOrder,
				ParentOrder:   parent.OriginalOrder,
				Name:          member.Name,
				Spend:         member.Spend,
				Child:         true,
			})
		}
	}
	return rows
}

// Header is the column layout shared by every writer.
var Header = []string{"Original Row Order", "Parent Row Order", "Supplier Name", "Spend", "Parent Spend"}

// childIndent prefixes member names so they read as sub-rows.
const childIndent = "  "

func (r Row) displayName() string {
	if r.Child {
		return childIndent + r.Name
	}
	return r.Name
}
