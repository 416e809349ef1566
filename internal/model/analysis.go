package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Well-known KPI field names.
const (
	FieldGroup          = "Gruppe"
	FieldRevenue        = "Erlöse"
	FieldPersonnelCosts = "Personalkosten"
	FieldOverheadCosts  = "Overhead-Kosten"
	FieldEBIT           = "EBIT"
	FieldAdditionalData = "AdditionalData"

	// GroupTotal is the group holding company-wide figures.
	GroupTotal = "Gesamtunternehmen"
)

// UnmappedAccount is an account the backend could not classify on its own.
type UnmappedAccount struct {
	Konto       string `json:"konto"`
	Bezeichnung string `json:"bezeichnung"`
}

// PreAnalysisResult lists accounts awaiting a category assignment.
type PreAnalysisResult struct {
	UnmappedAccounts    []UnmappedAccount `json:"unmappedAccounts"`
	AvailableCategories []string          `json:"availableCategories"`
}

// HasCategory reports whether name is one of the available categories.
func (p *PreAnalysisResult) HasCategory(name string) bool {
	for _, c := range p.AvailableCategories {
		if c == name {
			return true
		}
	}
	return false
}

// ResultFiles points at the exports the backend produced for an analysis.
type ResultFiles struct {
	TaskID     string `json:"taskId"`
	PdfS3Key   string `json:"pdfS3Key,omitempty"`
	ExcelS3Key string `json:"excelS3Key,omitempty"`
	CsvS3Key   string `json:"csvS3Key,omitempty"`
}

// ExportKind names one of the backend-generated export files.
type ExportKind string

// Export kinds.
const (
	ExportPDF   ExportKind = "pdf"
	ExportExcel ExportKind = "excel"
	ExportCSV   ExportKind = "csv"
)

// AllExportKinds lists every export kind in display order.
var AllExportKinds = []ExportKind{ExportPDF, ExportExcel, ExportCSV}

// Key returns the storage key for the given export kind.
func (r ResultFiles) Key(kind ExportKind) string {
	switch kind {
	case ExportPDF:
		return r.PdfS3Key
	case ExportExcel:
		return r.ExcelS3Key
	case ExportCSV:
		return r.CsvS3Key
	default:
		return ""
	}
}

// AnalysisResult is the completed KPI analysis of a project.
type AnalysisResult struct {
	ReportTitle string      `json:"reportTitle"`
	KpiResults  []KpiRow    `json:"kpiResults"`
	ResultFiles ResultFiles `json:"resultFiles"`
}

// TotalRow returns the company-wide KPI row.
func (a *AnalysisResult) TotalRow() (KpiRow, bool) {
	for _, row := range a.KpiResults {
		if row.Group() == GroupTotal {
			return row, true
		}
	}
	return KpiRow{}, false
}

// KpiField is a single named value of a KPI row.
type KpiField struct {
	Value any
	Name  string
}

// KpiRow is one group's computed metrics. Fields keep the order in which the
// backend delivered them; AdditionalData holds the category-level breakdown.
type KpiRow struct {
	AdditionalData map[string]float64
	Fields         []KpiField
}

// NewKpiRow builds a row from ordered fields.
func NewKpiRow(fields ...KpiField) KpiRow {
	return KpiRow{Fields: fields}
}

// Group returns the row's group label.
func (r KpiRow) Group() string {
	if v, ok := r.Get(FieldGroup); ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// Get returns the named field.
func (r KpiRow) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Number returns the named numeric field, falling back to AdditionalData.
func (r KpiRow) Number(name string) (float64, bool) {
	if v, ok := r.Get(name); ok {
		if n, ok := v.(float64); ok {
			return n, true
		}
	}
	if n, ok := r.AdditionalData[name]; ok {
		return n, true
	}
	return 0, false
}

// Names returns the field names in backend order.
func (r KpiRow) Names() []string {
	names := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		names = append(names, f.Name)
	}
	return names
}

// UnmarshalJSON decodes a row while preserving the field order.
func (r *KpiRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid kpi row: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("invalid kpi row: expected object")
	}

	r.Fields = nil
	r.AdditionalData = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("invalid kpi row: %w", err)
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("invalid kpi field %q: %w", key, err)
		}

		if key == FieldAdditionalData {
			breakdown, err := decodeBreakdown(raw)
			if err != nil {
				return fmt.Errorf("invalid kpi field %q: %w", key, err)
			}
			r.AdditionalData = breakdown
			continue
		}

		value, err := decodeScalar(raw)
		if err != nil {
			return fmt.Errorf("invalid kpi field %q: %w", key, err)
		}
		r.Fields = append(r.Fields, KpiField{Name: key, Value: value})
	}

	_, err = dec.Token()
	return err
}

// MarshalJSON encodes the row with its fields in order.
func (r KpiRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	if len(r.AdditionalData) > 0 {
		if len(r.Fields) > 0 {
			buf.WriteByte(',')
		}
		extra, err := json.Marshal(r.AdditionalData)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`"` + FieldAdditionalData + `":`)
		buf.Write(extra)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BreakdownNames returns the AdditionalData keys sorted by name.
func (r KpiRow) BreakdownNames() []string {
	names := make([]string, 0, len(r.AdditionalData))
	for name := range r.AdditionalData {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeScalar(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return v, nil
}

// decodeBreakdown accepts plain numbers as well as {"parsedValue": n} objects.
func decodeBreakdown(raw json.RawMessage) (map[string]float64, error) {
	if strings.TrimSpace(string(raw)) == "null" {
		return nil, nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(entries))
	for name, value := range entries {
		var n float64
		if err := json.Unmarshal(value, &n); err == nil {
			out[name] = n
			continue
		}
		var wrapped struct {
			ParsedValue *float64 `json:"parsedValue"`
		}
		if err := json.Unmarshal(value, &wrapped); err == nil && wrapped.ParsedValue != nil {
			out[name] = *wrapped.ParsedValue
		}
	}
	return out, nil
}
