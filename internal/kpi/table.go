// Package kpi formats analysis results for display and export.
package kpi

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

var germanPrinter = message.NewPrinter(language.German)

// Column describes one KPI table column.
type Column struct {
	Name       string
	Percent    bool
	RightAlign bool
}

// Table is a fully formatted KPI table.
type Table struct {
	Columns []Column
	Rows    [][]string
}

// Empty reports whether the table has no data.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// NewColumn classifies a header the way the report renders it.
func NewColumn(name string) Column {
	percent := strings.Contains(name, "%")
	return Column{
		Name:       name,
		Percent:    percent,
		RightAlign: percent || name == model.FieldEBIT || strings.Contains(name, "kosten"),
	}
}

// Columns returns the table columns: the first row's fields in backend order.
func Columns(rows []model.KpiRow) []Column {
	if len(rows) == 0 {
		return nil
	}
	names := rows[0].Names()
	cols := make([]Column, 0, len(names))
	for _, n := range names {
		if n == model.FieldAdditionalData {
			continue
		}
		cols = append(cols, NewColumn(n))
	}
	return cols
}

// BuildTable formats rows for display.
func BuildTable(rows []model.KpiRow) Table {
	cols := Columns(rows)
	table := Table{Columns: cols, Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			v, ok := row.Get(col.Name)
			if !ok {
				continue
			}
			cells[i] = FormatValue(v, col.Name)
		}
		table.Rows = append(table.Rows, cells)
	}
	return table
}

// FormatValue renders a cell. Numbers in percentage columns get two decimals
// and a percent sign; other numbers use German grouping.
func FormatValue(v any, header string) string {
	switch n := v.(type) {
	case float64:
		if strings.Contains(header, "%") {
			return fmt.Sprintf("%.2f%%", n)
		}
		return FormatAmount(n)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// FormatAmount renders an amount as 1.234,50.
func FormatAmount(v float64) string {
	return germanPrinter.Sprint(number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}
