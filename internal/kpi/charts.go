package kpi

import (
	"math"

	"github.com/Veraticus/susa-must-flow/internal/model"
)

// OverheadCategories are the breakdown categories charted individually.
var OverheadCategories = []string{
	"Abschreibungen & Anlagen",
	"Fremdleistungen",
	"Verwaltung & Büro",
	"IT & Kommunikation",
	"Reisen & Repräsentation",
	"Versicherungen & Gebühren",
	"Sonstige betriebliche Aufwendungen",
}

// Slice is one labelled value of a chart.
type Slice struct {
	Label string
	Value float64
}

// CostStructure splits company-wide costs into personnel, overhead and a
// positive EBIT. It reports false when there is no company-wide row.
func CostStructure(rows []model.KpiRow) ([]Slice, bool) {
	total, ok := totalRow(rows)
	if !ok {
		return nil, false
	}
	pk, _ := total.Number(model.FieldPersonnelCosts)
	oh, _ := total.Number(model.FieldOverheadCosts)
	ebit, _ := total.Number(model.FieldEBIT)
	return []Slice{
		{Label: model.FieldPersonnelCosts, Value: math.Abs(pk)},
		{Label: model.FieldOverheadCosts, Value: math.Abs(oh)},
		{Label: model.FieldEBIT, Value: math.Max(ebit, 0)},
	}, true
}

// CostCategories breaks overhead costs down by category. Categories without
// a non-zero amount are skipped; EBIT is appended only when positive.
func CostCategories(rows []model.KpiRow) ([]Slice, bool) {
	total, ok := totalRow(rows)
	if !ok {
		return nil, false
	}
	pk, _ := total.Number(model.FieldPersonnelCosts)
	out := []Slice{{Label: model.FieldPersonnelCosts, Value: math.Abs(pk)}}

	for _, category := range OverheadCategories {
		if v, ok := total.Number(category); ok && v != 0 {
			out = append(out, Slice{Label: category, Value: math.Abs(v)})
		}
	}
	if ebit, ok := total.Number(model.FieldEBIT); ok && ebit > 0 {
		out = append(out, Slice{Label: model.FieldEBIT, Value: ebit})
	}
	return out, true
}

// FinanceOverview compares revenue, total costs and EBIT.
func FinanceOverview(rows []model.KpiRow) ([]Slice, bool) {
	total, ok := totalRow(rows)
	if !ok {
		return nil, false
	}
	revenue, _ := total.Number(model.FieldRevenue)
	pk, _ := total.Number(model.FieldPersonnelCosts)
	oh, _ := total.Number(model.FieldOverheadCosts)
	ebit, _ := total.Number(model.FieldEBIT)
	return []Slice{
		{Label: model.FieldRevenue, Value: revenue},
		{Label: "Kosten", Value: math.Abs(pk) + math.Abs(oh)},
		{Label: model.FieldEBIT, Value: ebit},
	}, true
}

// BarLengths scales slice values to at most width cells, by magnitude.
func BarLengths(slices []Slice, width int) []int {
	out := make([]int, len(slices))
	var peak float64
	for _, s := range slices {
		peak = math.Max(peak, math.Abs(s.Value))
	}
	if peak == 0 || width <= 0 {
		return out
	}
	for i, s := range slices {
		out[i] = int(math.Round(math.Abs(s.Value) / peak * float64(width)))
	}
	return out
}

func totalRow(rows []model.KpiRow) (model.KpiRow, bool) {
	result := model.AnalysisResult{KpiResults: rows}
	return result.TotalRow()
}
