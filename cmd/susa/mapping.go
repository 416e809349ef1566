package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/susa-must-flow/internal/cli"
	"github.com/Veraticus/susa-must-flow/internal/mapping"
	"github.com/Veraticus/susa-must-flow/internal/model"
)

func mapCmd() *cobra.Command {
	var (
		assignments []string
		suggest     bool
		yes         bool
		wait        bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "map <id>",
		Short: "Assign categories to unknown accounts and start the analysis",
		Long: `Submit the account mapping of a project that is ready for mapping and
queue its analysis.

Accounts are assigned with repeated --set konto=Kategorie flags. --suggest
fills every account you did not set with its closest category by name.
Accounts left without a category are excluded from Personalkosten and
Overhead-Kosten; you are asked to confirm that unless --yes is given.`,
		Example: `  susa map 12 --set 4200=Raumkosten --set 4930=Bürobedarf
  susa map 12 --suggest --yes --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			chosen, err := mapping.ParseAssignments(assignments)
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
			pre := snap.Selection.Mapping
			if pre == nil {
				return fmt.Errorf("project %d is not waiting for a mapping (status: %s)", id, project.Status)
			}

			if suggest {
				for konto, s := range mapping.Suggest(pre) {
					if _, set := chosen[konto]; !set {
						chosen[konto] = s.Category
					}
				}
			}

			report, err := mapping.Validate(pre, chosen)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !report.Complete() {
				fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning(report.Warning()))
				if !yes {
					reader := cli.NewNonBlockingReader(cmd.InOrStdin())
					ok, err := reader.Confirm(ctx, cmd.ErrOrStderr(), "Submit anyway?")
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("Mapping not submitted."))
						return nil
					}
				}
			}

			if !a.coord.SaveMappingsAndRunAnalysis(ctx, id, report.Mappings) {
				return errOperationFailed
			}
			if !wait {
				return nil
			}

			status, err := waitForStatus(ctx, a, id, timeout, model.ProjectStatus.IsTerminal)
			if err != nil {
				return err
			}
			return describeOutcome(out, id, status)
		},
	}

	cmd.Flags().StringArrayVar(&assignments, "set", nil, "assign a category, konto=Kategorie (repeatable)")
	cmd.Flags().BoolVar(&suggest, "suggest", false, "use the closest category for accounts not set explicitly")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "submit without confirmation even if accounts stay unmapped")
	cmd.Flags().BoolVar(&wait, "wait", false, "follow the analysis until it completes or fails")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up waiting after this long")

	return cmd
}
