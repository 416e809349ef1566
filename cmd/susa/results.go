package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/susa-must-flow/internal/cli"
	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/config"
	"github.com/Veraticus/susa-must-flow/internal/kpi"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/sheets"
)

func resultsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show the KPI table of a finished analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			_, result, err := a.analysisFor(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			title := result.ReportTitle
			if title == "" {
				title = "KPI-Analyse"
			}
			fmt.Fprintln(out, cli.FormatTitle(title))
			fmt.Fprintln(out, renderKPITable(result.KpiResults))
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderExports(result.ResultFiles))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the analysis as JSON")

	return cmd
}

func downloadCmd() *cobra.Command {
	var (
		kinds []string
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the generated report files",
		Long: `Download the PDF, Excel and CSV reports of a finished analysis.

Files come from the object store when objectstore.endpoint is configured and
through the backend otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			wanted, err := parseKinds(kinds)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if dir == "" {
				dir = a.cfg.DownloadDir
			}
			dir = config.ExpandPath(dir)
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}

			_, result, err := a.analysisFor(ctx, id)
			if err != nil {
				return err
			}

			dl, err := a.newDownloader(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			saved, err := dl.Fetch(ctx, id, result.ResultFiles, wanted, dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range saved {
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%-6s %s", strings.ToUpper(string(r.Kind)), r.Path)))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "report kinds to download: pdf, excel, csv (default all)")
	cmd.Flags().StringVar(&dir, "dir", "", "target directory (default download.dir)")

	return cmd
}

func exportCmd() *cobra.Command {
	var (
		xlsxPath string
		toSheets bool
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export the KPI table to a workbook or Google Sheets",
		Long: `Export the KPI table of a finished analysis.

--xlsx writes a local workbook with a KPI sheet and a category breakdown.
--sheets writes the table to the spreadsheet configured under sheets.*
(run "susa sheets-login" first when using OAuth2).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (xlsxPath == "") == !toSheets {
				return fmt.Errorf("%w: use exactly one of --xlsx or --sheets", common.ErrInvalidInput)
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			project, result, err := a.analysisFor(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if toSheets {
				sheetsCfg, err := config.LoadSheetsConfig()
				if err != nil {
					return err
				}
				writer, err := sheets.NewWriter(ctx, *sheetsCfg, slog.Default())
				if err != nil {
					return err
				}
				spreadsheetID, err := writer.Export(ctx, project, result)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess("Exported to "+sheets.SpreadsheetURL(spreadsheetID)))
				return nil
			}

			path := filepath.Clean(config.ExpandPath(xlsxPath))
			if err := writeWorkbook(path, result); err != nil {
				return err
			}
			fmt.Fprintln(out, cli.FormatSuccess("Workbook written to "+path))
			return nil
		},
	}

	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write an Excel workbook to this path")
	cmd.Flags().BoolVar(&toSheets, "sheets", false, "export to Google Sheets")

	return cmd
}

func writeWorkbook(path string, result *model.AnalysisResult) (err error) {
	f, err := os.Create(path) // #nosec G304 -- user supplied export path
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return kpi.WriteXLSX(f, result)
}

func parseKinds(values []string) ([]model.ExportKind, error) {
	var kinds []model.ExportKind
	for _, v := range values {
		kind := model.ExportKind(strings.ToLower(strings.TrimSpace(v)))
		switch kind {
		case model.ExportPDF, model.ExportExcel, model.ExportCSV:
			kinds = append(kinds, kind)
		case "xlsx":
			kinds = append(kinds, model.ExportExcel)
		default:
			return nil, fmt.Errorf("%w: unknown report kind %q (want pdf, excel or csv)", common.ErrInvalidInput, v)
		}
	}
	return kinds, nil
}
