package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/susa-must-flow/internal/cli"
	"github.com/Veraticus/susa-must-flow/internal/config"
	"github.com/Veraticus/susa-must-flow/internal/mapping"
	"github.com/Veraticus/susa-must-flow/internal/model"
)

func projectsCmd() *cobra.Command {
	var cached, asJSON bool

	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"ls"},
		Short:   "List uploaded projects",
		Long: `List every project with its processing status.

With --cached the list saved by the last successful refresh is shown without
contacting the backend.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var projects []model.Project
			if cached {
				var savedAt time.Time
				projects, savedAt, err = a.coord.CachedProjects(ctx)
				if err != nil {
					return err
				}
				if !asJSON {
					fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("Cached list from "+formatAge(savedAt)))
				}
			} else {
				if !a.coord.RefreshProjects(ctx) {
					return errOperationFailed
				}
				projects = a.coord.Snapshot().Projects
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(projects)
			}
			if len(projects) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No projects yet. Upload a SUSA file with `susa upload <file>`."))
				return nil
			}
			fmt.Fprintln(out, renderProjects(projects))
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "show the last saved list without contacting the backend")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func uploadCmd() *cobra.Command {
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a SUSA file for analysis",
		Long: `Upload a SUSA file (Excel or CSV export of the trial balance).

With --wait the command follows the job until the project needs a mapping,
completes, or fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := filepath.Clean(config.ExpandPath(args[0]))

			f, err := os.Open(path) // #nosec G304 -- user supplied upload
			if err != nil {
				return fmt.Errorf("cannot open %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()

			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", path, err)
			}

			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			bar := progressbar.NewOptions64(info.Size(),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Uploading"),
				progressbar.OptionShowBytes(true),
				progressbar.OptionClearOnFinish(),
			)
			reader := progressbar.NewReader(f, bar)

			id, ok := a.coord.UploadFile(ctx, filepath.Base(path), &reader)
			_ = bar.Finish()
			if !ok {
				return errOperationFailed
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Project %d created.", id)))
			if !wait {
				return nil
			}

			status, err := waitForStatus(ctx, a, id, timeout, func(s model.ProjectStatus) bool {
				return s.NeedsMapping() || s.IsTerminal()
			})
			if err != nil {
				return err
			}
			return describeOutcome(out, id, status)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "follow the job until it needs input or finishes")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up waiting after this long")

	return cmd
}

func selectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Show what a project needs next",
		Long: `Load a project the way the dashboard does: accounts waiting for a
category when it needs a mapping, the KPI table when the analysis is complete,
or its current status otherwise.`,
		Args: cobra.ExactArgs(1),
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

			snap, project, err := a.selectProject(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(project.OriginalFileName))
			fmt.Fprintln(out, "Status: "+cli.FormatStatus(project.Status))

			switch {
			case snap.Selection.Mapping != nil:
				fmt.Fprintln(out, renderMappingData(id, snap.Selection.Mapping))
			case snap.Selection.Analysis != nil:
				fmt.Fprintln(out, renderKPITable(snap.Selection.Analysis.KpiResults))
				fmt.Fprintln(out, renderExports(snap.Selection.Analysis.ResultFiles))
			case project.Status.IsFailed():
				if reason := project.Status.FailureReason(); reason != "" {
					fmt.Fprintln(out, cli.FormatError(reason))
				}
			}
			return nil
		},
	}
}

func renameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a project",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			name := strings.TrimSpace(strings.Join(args[1:], " "))
			if name == "" {
				return fmt.Errorf("new name must not be empty")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.coord.RenameProject(ctx, id, name) {
				return errOperationFailed
			}
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a project and its results",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if !yes {
				reader := cli.NewNonBlockingReader(cmd.InOrStdin())
				ok, err := reader.Confirm(ctx, cmd.ErrOrStderr(), fmt.Sprintf("Delete project %d? This cannot be undone.", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("Nothing deleted."))
					return nil
				}
			}

			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.coord.DeleteProject(ctx, id) {
				return errOperationFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

// renderMappingData lists the accounts waiting for a category together with
// the best guess for each.
func renderMappingData(id int64, pre *model.PreAnalysisResult) string {
	if len(pre.UnmappedAccounts) == 0 {
		return cli.FormatInfo(fmt.Sprintf("No accounts need a category. Start the analysis with `susa map %d`.", id))
	}

	suggestions := mapping.Suggest(pre)
	var b strings.Builder
	fmt.Fprintf(&b, "%d account(s) need a category:\n", len(pre.UnmappedAccounts))
	for _, acc := range pre.UnmappedAccounts {
		line := fmt.Sprintf("  %-8s %s", acc.Konto, acc.Bezeichnung)
		if s, ok := suggestions[acc.Konto]; ok {
			line += cli.SubtleStyle.Render(fmt.Sprintf("  → %s (%.0f%%)", s.Category, s.Score*100))
		}
		b.WriteString(line + "\n")
	}

	categories := append([]string(nil), pre.AvailableCategories...)
	sort.Strings(categories)
	b.WriteString("\nCategories: " + strings.Join(categories, ", ") + "\n\n")
	b.WriteString(cli.SubtleStyle.Render(fmt.Sprintf("Assign with `susa map %d --set konto=Kategorie` or accept the guesses with --suggest.", id)))
	return b.String()
}

// describeOutcome prints where a followed job ended up.
func describeOutcome(out io.Writer, id int64, status model.ProjectStatus) error {
	switch {
	case status.NeedsMapping():
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Project %d needs an account mapping. Run `susa select %d`.", id, id)))
	case status == model.StatusAnalysisComplete:
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Analysis of project %d is complete. Run `susa results %d`.", id, id)))
	case status.IsFailed():
		msg := fmt.Sprintf("Project %d failed", id)
		if reason := status.FailureReason(); reason != "" {
			msg += ": " + reason
		}
		return fmt.Errorf("%s", msg)
	default:
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Project %d is %s.", id, status)))
	}
	return nil
}
