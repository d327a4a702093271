package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jubeelegal/jubee/internal/output"
)

var proceedOverride bool

var proceedCmd = &cobra.Command{
	Use:   "proceed <package>",
	Short: "Run the completion gate",
	Long: `Check whether the package may move forward to filing.

Filing is allowed when no pending defects remain. With --override the gate
is bypassed and the remaining defect counts are recorded for audit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return proceedRun(args[0])
	},
}

func init() {
	proceedCmd.Flags().BoolVar(&proceedOverride, "override", false, "Proceed despite pending defects")
	rootCmd.AddCommand(proceedCmd)
}

func proceedRun(packageName string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, dataStore, packageName)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would run the completion gate for %s", p.Name)
		return nil
	}

	res, err := m.Proceed(ctx, p.ID, proceedOverride)
	if err != nil {
		return fmt.Errorf("completion gate: %w", err)
	}

	if !res.Allowed {
		ui.Error("Package %s is blocked: %d must-fix, %d review, %d advisory defects pending",
			p.Name, res.Summary.MustFix, res.Summary.Review, res.Summary.Advisory)
		ui.Info("Resolve or ignore the pending defects, or rerun with --override")
		return fmt.Errorf("completion gate blocked")
	}

	if res.Override {
		ui.Warning("Proceeding with %d pending defects under override", res.Summary.Total())
	}
	ui.Success("Package %s is %s", output.Cyan(p.Name), output.Green("ready to file"))
	return nil
}
