package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/output"
	"github.com/jubeelegal/jubee/internal/rules"
)

var scanCmd = &cobra.Command{
	Use:   "scan <package>",
	Short: "Run a scrutiny pass over a package",
	Long: `Evaluate every compliance rule against the package's current document
set. Each run produces a fresh pass; defects resolved since the last run
simply stop appearing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scanRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func scanRun(packageName string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, dataStore, packageName)
	if err != nil {
		return err
	}

	pass, err := m.Scan(ctx, p.ID)
	if err != nil {
		if errors.Is(err, rules.ErrMalformedSet) {
			return fmt.Errorf("package %s has no primary petition; add one with 'jubee document add %s --role primary'", p.Name, p.Name)
		}
		return fmt.Errorf("scrutiny pass: %w", err)
	}

	ui.VerboseLog("Pass %s over snapshot %s", pass.ID, pass.SnapshotID)

	if len(pass.Defects) == 0 {
		ui.Success("No defects found. Package %s is ready for the completion gate.", output.Cyan(p.Name))
		return nil
	}

	printDefectTable(pass.Defects)
	fmt.Fprintln(ui.Out)
	ui.Info("Resolve with 'jubee resolve %s <defect-id> --strategy <strategy>'", p.Name)
	return nil
}

func printDefectTable(defects []*models.Defect) {
	table := ui.Table([]string{"ID", "Severity", "Kind", "Status", "Description"})
	for _, d := range defects {
		table.Append([]string{
			d.ID[:12],
			output.SeverityColor(string(d.Severity)),
			string(d.Kind),
			output.StatusColor(string(d.Status)),
			d.Description,
		})
	}
	table.Render()
}
