package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/output"
	"github.com/jubeelegal/jubee/internal/store"
)

var (
	defectStatus   string
	defectSeverity string
)

var defectCmd = &cobra.Command{
	Use:   "defect",
	Short: "Inspect and manage defects",
	Long:  "List, show, and ignore defects from the latest scrutiny pass.",
}

var defectListCmd = &cobra.Command{
	Use:     "list <package>",
	Aliases: []string{"ls"},
	Short:   "List defects for a package",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return defectListRun(args[0])
	},
}

var defectShowCmd = &cobra.Command{
	Use:   "show <package> <defect-id>",
	Short: "Show defect details",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return defectShowRun(args[0], args[1])
	},
}

var defectIgnoreCmd = &cobra.Command{
	Use:   "ignore <package> <defect-id>",
	Short: "Mark a defect as ignored",
	Long:  "Ignored defects stay on record but no longer block the completion gate.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return defectIgnoreRun(args[0], args[1])
	},
}

func init() {
	defectListCmd.Flags().StringVar(&defectStatus, "status", "", "Filter by status: pending, resolved, ignored")
	defectListCmd.Flags().StringVar(&defectSeverity, "severity", "", "Filter by severity: must-fix, review, advisory")

	defectCmd.AddCommand(defectListCmd)
	defectCmd.AddCommand(defectShowCmd)
	defectCmd.AddCommand(defectIgnoreCmd)
	rootCmd.AddCommand(defectCmd)
}

func defectListRun(packageName string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, s, packageName)
	if err != nil {
		return err
	}

	filter := store.DefectListFilter{
		PackageID: p.ID,
		Status:    models.DefectStatus(defectStatus),
		Severity:  models.DefectSeverity(defectSeverity),
	}
	defects, err := s.ListDefects(ctx, filter)
	if err != nil {
		return err
	}

	if len(defects) == 0 {
		ui.Info("No defects. Run 'jubee scan %s' for a fresh pass.", p.Name)
		return nil
	}

	printDefectTable(defects)
	return nil
}

func defectShowRun(packageName, defectID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, s, packageName)
	if err != nil {
		return err
	}
	d, err := findDefect(ctx, s, p.ID, defectID)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(d.ID))
	fmt.Fprintf(ui.Out, "  Kind:       %s\n", d.Kind)
	fmt.Fprintf(ui.Out, "  Severity:   %s\n", output.SeverityColor(string(d.Severity)))
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(d.Status)))
	fmt.Fprintf(ui.Out, "  Says:       %s\n", d.Description)
	fmt.Fprintf(ui.Out, "  Because:    %s\n", d.Explanation)
	if d.RelatedDocumentID != "" {
		fmt.Fprintf(ui.Out, "  Document:   %s\n", d.RelatedDocumentID)
	}
	if d.AnnexureLabel != "" {
		fmt.Fprintf(ui.Out, "  Annexure:   %s\n", d.AnnexureLabel)
	}
	if d.PageNumber != 0 {
		fmt.Fprintf(ui.Out, "  Page:       %d\n", d.PageNumber)
	}
	if len(d.Pages) > 0 {
		pages := make([]string, len(d.Pages))
		for i, pg := range d.Pages {
			pages[i] = fmt.Sprintf("%d", pg)
		}
		fmt.Fprintf(ui.Out, "  Pages:      %s\n", strings.Join(pages, ", "))
	}
	if d.ResolvedAt != nil {
		fmt.Fprintf(ui.Out, "  Resolved:   %s\n", timeAgo(*d.ResolvedAt))
	}

	if d.Status == models.DefectStatusPending {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "  Fix with:   jubee resolve %s %s --strategy <strategy>\n", p.Name, d.ID[:12])
	}
	return nil
}

func defectIgnoreRun(packageName, defectID string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, dataStore, packageName)
	if err != nil {
		return err
	}
	d, err := findDefect(ctx, dataStore, p.ID, defectID)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would ignore defect %s", d.ID)
		return nil
	}

	if err := m.Ignore(ctx, p.ID, d.ID); err != nil {
		return fmt.Errorf("ignore defect: %w", err)
	}

	ui.Success("Ignored defect %s", output.Cyan(d.ID[:12]))
	ui.Warning("Ignored defects no longer block the completion gate")
	return nil
}

// findDefect finds a defect in the package's latest pass by full ID or
// unique prefix.
func findDefect(ctx context.Context, s store.Store, packageID, id string) (*models.Defect, error) {
	defects, err := s.ListDefects(ctx, store.DefectListFilter{PackageID: packageID})
	if err != nil {
		return nil, err
	}

	var matches []*models.Defect
	for _, d := range defects {
		if strings.HasPrefix(d.ID, id) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("defect not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous defect ID %s: matches %d defects", id, len(matches))
	}
}
