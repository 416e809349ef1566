package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/kpi"
	"github.com/Veraticus/susa-must-flow/internal/model"
)

const (
	amountPattern  = "#,##0.00"
	percentPattern = `0.00"%"`
)

// Writer exports analysis results to a Google spreadsheet.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewWriterWithService(srv, config, logger), nil
}

// NewWriterWithService creates a writer on top of an existing Sheets service.
func NewWriterWithService(srv *sheets.Service, config Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	return &Writer{service: srv, config: config, logger: logger}
}

// Export writes the KPI table and category breakdown of result and returns
// the spreadsheet id.
func (w *Writer) Export(ctx context.Context, project model.Project, result *model.AnalysisResult) (string, error) {
	if result == nil || len(result.KpiResults) == 0 {
		return "", fmt.Errorf("%w: analysis has no KPI rows", common.ErrNotFound)
	}

	w.logger.Info("starting sheets export",
		"project_id", project.ID,
		"rows", len(result.KpiResults))

	spreadsheetID, sheetID, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	if clearErr := w.clearSheet(ctx, spreadsheetID); clearErr != nil {
		return "", fmt.Errorf("failed to clear sheet: %w", clearErr)
	}

	report := buildReport(project, result)

	retryOpts := w.config.retryOptions()

	err = common.WithRetry(ctx, func() error {
		return w.writeData(ctx, spreadsheetID, report.values)
	}, retryOpts)
	if err != nil {
		return "", fmt.Errorf("failed to write data: %w", err)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return w.applyFormatting(ctx, spreadsheetID, sheetID, report)
		}, retryOpts)
		if err != nil {
			// Formatting is cosmetic; the data is already written.
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("sheets export completed",
		"spreadsheet_id", spreadsheetID,
		"rows_written", len(report.values))

	return spreadsheetID, nil
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := oauthConfig(config.ClientID, config.ClientSecret, "")
		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}
		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet returns the target spreadsheet and the id of its
// first sheet.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, int64, error) {
	if w.config.SpreadsheetID != "" {
		existing, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return "", 0, fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
		}
		return w.config.SpreadsheetID, firstSheetID(existing), nil
	}

	name := w.config.SpreadsheetName
	if name == "" {
		name = DefaultSpreadsheetName
	}
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    name,
			TimeZone: w.config.TimeZone,
			Locale:   "de_DE",
		},
		Sheets: []*sheets.Sheet{
			{Properties: &sheets.SheetProperties{Title: kpi.SheetKPI}},
		},
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", 0, fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, firstSheetID(created), nil
}

func firstSheetID(s *sheets.Spreadsheet) int64 {
	if s == nil || len(s.Sheets) == 0 || s.Sheets[0].Properties == nil {
		return 0
	}
	return s.Sheets[0].Properties.SheetId
}

// clearSheet clears all data from the sheet.
func (w *Writer) clearSheet(ctx context.Context, spreadsheetID string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, "A:Z", &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// report is the cell layout of one export.
type report struct {
	values [][]any
	// columns of the KPI block, used for number formats
	columns []kpi.Column
	// zero-based row indexes of the section header rows
	headerRows []int
	kpiStart   int
	kpiEnd     int
	breakStart int
	breakEnd   int
}

func buildReport(project model.Project, result *model.AnalysisResult) report {
	var r report

	title := strings.TrimSpace(result.ReportTitle)
	if title == "" {
		title = "KPI-Analyse"
	}
	r.values = append(r.values,
		[]any{title, project.OriginalFileName},
		[]any{},
	)

	r.columns = kpi.Columns(result.KpiResults)
	header := make([]any, 0, len(r.columns))
	for _, col := range r.columns {
		header = append(header, col.Name)
	}
	r.headerRows = append(r.headerRows, len(r.values))
	r.values = append(r.values, header)

	r.kpiStart = len(r.values)
	for _, row := range result.KpiResults {
		cells := make([]any, len(r.columns))
		for i, col := range r.columns {
			if v, ok := row.Get(col.Name); ok {
				cells[i] = v
			} else {
				cells[i] = ""
			}
		}
		r.values = append(r.values, cells)
	}
	r.kpiEnd = len(r.values)

	r.values = append(r.values, []any{})
	r.headerRows = append(r.headerRows, len(r.values))
	r.values = append(r.values, []any{model.FieldGroup, "Kategorie", "Betrag"})

	r.breakStart = len(r.values)
	for _, row := range result.KpiResults {
		for _, name := range row.BreakdownNames() {
			r.values = append(r.values, []any{row.Group(), name, row.AdditionalData[name]})
		}
	}
	r.breakEnd = len(r.values)

	return r
}

// writeData writes the data to the spreadsheet.
func (w *Writer) writeData(ctx context.Context, spreadsheetID string, values [][]any) error {
	// Write in batches to avoid API limits
	for i := 0; i < len(values); i += w.config.BatchSize {
		end := min(i+w.config.BatchSize, len(values))

		batch := values[i:end]
		valueRange := &sheets.ValueRange{
			Values: batch,
		}

		rangeStr := fmt.Sprintf("A%d", i+1)
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, rangeStr, valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()

		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "start_row", i+1, "rows", len(batch))
	}

	return nil
}

// applyFormatting applies formatting to the spreadsheet.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, sheetID int64, r report) error {
	requests := []*sheets.Request{
		textFormat(sheetID, 0, 1, 0, 2, &sheets.TextFormat{Bold: true, FontSize: 14}),
	}

	for _, row := range r.headerRows {
		requests = append(requests, textFormat(sheetID, int64(row), int64(row+1), 0, int64(max(len(r.columns), 3)),
			&sheets.TextFormat{Bold: true}))
	}

	for i, col := range r.columns {
		pattern := amountPattern
		if col.Percent {
			pattern = percentPattern
		}
		requests = append(requests, numberFormat(sheetID, int64(r.kpiStart), int64(r.kpiEnd), int64(i), pattern))
	}
	if r.breakEnd > r.breakStart {
		requests = append(requests, numberFormat(sheetID, int64(r.breakStart), int64(r.breakEnd), 2, amountPattern))
	}

	requests = append(requests,
		&sheets.Request{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(max(len(r.columns), 3)),
				},
			},
		},
		&sheets.Request{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: sheetID,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount: int64(r.kpiStart),
					},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	)

	batchUpdate := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, batchUpdate).Context(ctx).Do()
	return err
}

func textFormat(sheetID, startRow, endRow, startCol, endCol int64, format *sheets.TextFormat) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    startRow,
				EndRowIndex:      endRow,
				StartColumnIndex: startCol,
				EndColumnIndex:   endCol,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{TextFormat: format},
			},
			Fields: "userEnteredFormat.textFormat",
		},
	}
}

func numberFormat(sheetID, startRow, endRow, col int64, pattern string) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    startRow,
				EndRowIndex:      endRow,
				StartColumnIndex: col,
				EndColumnIndex:   col + 1,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					NumberFormat: &sheets.NumberFormat{Type: "NUMBER", Pattern: pattern},
				},
			},
			Fields: "userEnteredFormat.numberFormat",
		},
	}
}
