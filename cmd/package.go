package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/output"
	"github.com/jubeelegal/jubee/internal/store"
)

var (
	packageCategory string
	packageProfile  string
	packageStatus   string
)

var packageCmd = &cobra.Command{
	Use:     "package",
	Aliases: []string{"pkg"},
	Short:   "Manage filing packages",
	Long:    "Create, remove, list, and show court filing packages.",
}

var packageAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a filing package",
	Long:  "Create a new filing package in the intake stage.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packageAddRun(args[0])
	},
}

var packageRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a filing package",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packageRemoveRun(args[0])
	},
}

var packageListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List filing packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return packageListRun()
	},
}

var packageShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show detailed package information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packageShowRun(args[0])
	},
}

func init() {
	packageAddCmd.Flags().StringVar(&packageCategory, "category", "civil-suit", "Case category: civil-suit, writ-petition, appeal")
	packageAddCmd.Flags().StringVar(&packageProfile, "profile", "", "Court profile name (default: built-in profile)")

	packageListCmd.Flags().StringVar(&packageStatus, "status", "", "Filter by status: intake, scrutiny, ready, filed")

	packageCmd.AddCommand(packageAddCmd)
	packageCmd.AddCommand(packageRemoveCmd)
	packageCmd.AddCommand(packageListCmd)
	packageCmd.AddCommand(packageShowCmd)
	rootCmd.AddCommand(packageCmd)
}

func packageAddRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	p := &models.FilingPackage{
		Name:         name,
		CaseCategory: packageCategory,
		CourtProfile: packageProfile,
	}

	if dryRun {
		ui.DryRunMsg("Would create package: %s (%s)", name, packageCategory)
		return nil
	}

	if err := s.CreatePackage(context.Background(), p); err != nil {
		return fmt.Errorf("create package: %w", err)
	}

	ui.Success("Created package: %s (%s)", output.Cyan(name), packageCategory)
	if packageProfile != "" {
		ui.VerboseLog("Court profile: %s", packageProfile)
	}
	return nil
}

func packageRemoveRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, s, name)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove package: %s", p.Name)
		return nil
	}

	if err := s.DeletePackage(ctx, p.ID); err != nil {
		return fmt.Errorf("remove package: %w", err)
	}

	ui.Success("Removed package: %s", output.Cyan(p.Name))
	return nil
}

func packageListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	packages, err := s.ListPackages(ctx, models.PackageStatus(packageStatus))
	if err != nil {
		return err
	}

	if len(packages) == 0 {
		ui.Info("No filing packages. Use 'jubee package add <name>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Name", "Category", "Profile", "Status", "Pending"})
	for _, p := range packages {
		defects, _ := s.ListDefects(ctx, store.DefectListFilter{PackageID: p.ID, Status: models.DefectStatusPending})
		pending := fmt.Sprintf("%d", len(defects))

		profile := p.CourtProfile
		if profile == "" {
			profile = "default"
		}
		table.Append([]string{
			output.Cyan(p.Name),
			p.CaseCategory,
			profile,
			output.StatusColor(string(p.Status)),
			pending,
		})
	}
	table.Render()
	return nil
}

func packageShowRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, s, name)
	if err != nil {
		return err
	}

	// Header
	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(p.Name))
	fmt.Fprintf(ui.Out, "  Category:   %s\n", p.CaseCategory)
	if p.CourtProfile != "" {
		fmt.Fprintf(ui.Out, "  Profile:    %s\n", p.CourtProfile)
	}
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(p.Status)))
	fmt.Fprintf(ui.Out, "  Created:    %s\n", timeAgo(p.CreatedAt))
	fmt.Fprintln(ui.Out)

	// Documents
	docs, err := s.ListDocuments(ctx, p.ID)
	if err == nil && len(docs) > 0 {
		fmt.Fprintf(ui.Out, "  Documents:  %d\n", len(docs))
		for _, d := range docs {
			label := ""
			if d.Label != "" {
				label = fmt.Sprintf(" [%s]", d.Label)
			}
			fmt.Fprintf(ui.Out, "    %-8s %s%s (%d pages, %s)\n",
				d.Role, d.DisplayName, label, d.PageCount, formatBytes(d.SizeBytes))
		}
		fmt.Fprintln(ui.Out)
	}

	// Latest pass and defect counts
	pass, err := s.GetLatestPass(ctx, p.ID)
	if err == nil && pass != nil {
		pending, resolved, ignored := 0, 0, 0
		for _, d := range pass.Defects {
			switch d.Status {
			case models.DefectStatusPending:
				pending++
			case models.DefectStatusResolved:
				resolved++
			case models.DefectStatusIgnored:
				ignored++
			}
		}
		fmt.Fprintf(ui.Out, "  Last scan:  %s (pass %s)\n", timeAgo(pass.CreatedAt), pass.ID[:8])
		fmt.Fprintf(ui.Out, "  Defects:    %d pending, %d resolved, %d ignored\n", pending, resolved, ignored)
	} else {
		fmt.Fprintf(ui.Out, "  Last scan:  never (run 'jubee scan %s')\n", p.Name)
	}

	// Gate decisions
	decisions, err := s.ListProceedDecisions(ctx, p.ID)
	if err == nil && len(decisions) > 0 {
		last := decisions[len(decisions)-1]
		verdict := output.Red("blocked")
		if last.Allowed {
			verdict = output.Green("allowed")
			if last.Override {
				verdict = output.Yellow("allowed (override)")
			}
		}
		fmt.Fprintf(ui.Out, "  Last gate:  %s, %s\n", verdict, timeAgo(last.DecidedAt))
	}

	return nil
}

// resolvePackage finds a package by name or id.
func resolvePackage(ctx context.Context, s store.Store, nameOrID string) (*models.FilingPackage, error) {
	// Try by name first
	if p, err := s.GetPackageByName(ctx, nameOrID); err == nil {
		return p, nil
	}
	if p, err := s.GetPackage(ctx, nameOrID); err == nil {
		return p, nil
	}
	return nil, fmt.Errorf("package not found: %s", nameOrID)
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}

// formatBytes returns a human-readable byte size string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
