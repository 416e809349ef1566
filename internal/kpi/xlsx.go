package kpi

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

// Workbook sheet names.
const (
	SheetKPI       = "KPI"
	SheetBreakdown = "Kategorien"
)

const (
	amountFormat  = `#,##0.00`
	percentFormat = `0.00"%"`
)

// WriteXLSX writes the KPI table and the category breakdown as a workbook.
func WriteXLSX(w io.Writer, result *model.AnalysisResult) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetKPI); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetBreakdown); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}
	if err := writeKPISheet(f, styles, result.KpiResults); err != nil {
		return err
	}
	if err := writeBreakdownSheet(f, styles, result.KpiResults); err != nil {
		return err
	}

	if title := strings.TrimSpace(result.ReportTitle); title != "" {
		if err := f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "susa"}); err != nil {
			return fmt.Errorf("failed to set workbook properties: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type sheetStyles struct {
	header  int
	amount  int
	percent int
}

func newStyles(f *excelize.File) (sheetStyles, error) {
	var s sheetStyles
	var err error

	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F2937"}, Pattern: 1},
	}); err != nil {
		return s, fmt.Errorf("failed to create header style: %w", err)
	}

	amount := amountFormat
	if s.amount, err = f.NewStyle(&excelize.Style{CustomNumFmt: &amount}); err != nil {
		return s, fmt.Errorf("failed to create amount style: %w", err)
	}

	percent := percentFormat
	if s.percent, err = f.NewStyle(&excelize.Style{CustomNumFmt: &percent}); err != nil {
		return s, fmt.Errorf("failed to create percent style: %w", err)
	}
	return s, nil
}

func writeKPISheet(f *excelize.File, styles sheetStyles, rows []model.KpiRow) error {
	cols := Columns(rows)
	for i, col := range cols {
		if err := setCell(f, SheetKPI, i+1, 1, col.Name, styles.header); err != nil {
			return err
		}
	}

	for r, row := range rows {
		for i, col := range cols {
			v, ok := row.Get(col.Name)
			if !ok {
				continue
			}
			style := 0
			if _, numeric := v.(float64); numeric {
				style = styles.amount
				if col.Percent {
					style = styles.percent
				}
			}
			if err := setCell(f, SheetKPI, i+1, r+2, v, style); err != nil {
				return err
			}
		}
	}

	if len(cols) > 0 {
		last, _ := excelize.ColumnNumberToName(len(cols))
		if err := f.SetColWidth(SheetKPI, "A", last, 18); err != nil {
			return fmt.Errorf("failed to size columns: %w", err)
		}
	}
	return nil
}

func writeBreakdownSheet(f *excelize.File, styles sheetStyles, rows []model.KpiRow) error {
	for i, h := range []string{model.FieldGroup, "Kategorie", "Betrag"} {
		if err := setCell(f, SheetBreakdown, i+1, 1, h, styles.header); err != nil {
			return err
		}
	}

	line := 2
	for _, row := range rows {
		for _, name := range row.BreakdownNames() {
			if err := setCell(f, SheetBreakdown, 1, line, row.Group(), 0); err != nil {
				return err
			}
			if err := setCell(f, SheetBreakdown, 2, line, name, 0); err != nil {
				return err
			}
			if err := setCell(f, SheetBreakdown, 3, line, row.AdditionalData[name], styles.amount); err != nil {
				return err
			}
			line++
		}
	}
	return f.SetColWidth(SheetBreakdown, "A", "C", 28)
}

func setCell(f *excelize.File, sheet string, col, row int, value any, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
	}
	if style != 0 {
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to style %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
