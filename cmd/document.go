package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/output"
	"github.com/jubeelegal/jubee/internal/picker"
)

var (
	docName          string
	docRole          string
	docLabel         string
	docContentType   string
	docPages         int
	docMargin        float64
	docFont          string
	docLanguage      string
	docStampDuty     int64
	docNarrationFile string
	docPageNumbers   string
	docIndexEntries  string
	docStorageKey    string
	docPickPrefix    string
)

var documentCmd = &cobra.Command{
	Use:     "document",
	Aliases: []string{"doc"},
	Short:   "Manage package documents",
	Long:    "Add, list, and pick documents for a filing package.",
}

var documentAddCmd = &cobra.Command{
	Use:   "add <package>",
	Short: "Add a document to a package",
	Long: `Add a document to a filing package.

Document metadata (margins, fonts, languages, page numbers) is normally
extracted at upload time; the flags here record that metadata directly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return documentAddRun(args[0])
	},
}

var documentListCmd = &cobra.Command{
	Use:     "list <package>",
	Aliases: []string{"ls"},
	Short:   "List documents in a package",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return documentListRun(args[0])
	},
}

var documentPickCmd = &cobra.Command{
	Use:   "pick <package>",
	Short: "Pick a document from object storage",
	Long: `List objects in the configured storage bucket, or attach one to the
package with --key. Requires minio.* to be configured.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return documentPickRun(args[0])
	},
}

func init() {
	documentAddCmd.Flags().StringVar(&docName, "name", "", "Display name (required)")
	documentAddCmd.Flags().StringVar(&docRole, "role", "annexure", "Role: primary, annexure, index, other")
	documentAddCmd.Flags().StringVar(&docLabel, "label", "", "Annexure label, e.g. A-1")
	documentAddCmd.Flags().StringVar(&docContentType, "content-type", "application/pdf", "MIME content type")
	documentAddCmd.Flags().IntVar(&docPages, "pages", 0, "Page count")
	documentAddCmd.Flags().Float64Var(&docMargin, "margin", 0, "Left margin in inches")
	documentAddCmd.Flags().StringVar(&docFont, "font", "", "Font family")
	documentAddCmd.Flags().StringVar(&docLanguage, "language", "", "Document language code, e.g. en, hi")
	documentAddCmd.Flags().Int64Var(&docStampDuty, "stamp-duty", 0, "Stamp duty paid, in paise")
	documentAddCmd.Flags().StringVar(&docNarrationFile, "narration-file", "", "File holding the narration text")
	documentAddCmd.Flags().StringVar(&docPageNumbers, "page-numbers", "", "Printed page numbers, comma-separated")
	documentAddCmd.Flags().StringVar(&docIndexEntries, "index-entries", "", "Annexure labels listed in an index document, comma-separated")
	_ = documentAddCmd.MarkFlagRequired("name")

	documentPickCmd.Flags().StringVar(&docStorageKey, "key", "", "Object key to attach (omit to list the bucket)")
	documentPickCmd.Flags().StringVar(&docRole, "role", "annexure", "Role for the picked document")
	documentPickCmd.Flags().StringVar(&docLabel, "label", "", "Annexure label for the picked document")
	documentPickCmd.Flags().StringVar(&docPickPrefix, "prefix", "", "Key prefix filter when listing")

	documentCmd.AddCommand(documentAddCmd)
	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentPickCmd)
	rootCmd.AddCommand(documentCmd)
}

func documentAddRun(packageName string) error {
	m, err := getManager()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, dataStore, packageName)
	if err != nil {
		return err
	}

	d := &models.DocumentRef{
		DisplayName:        docName,
		Role:               models.DocumentRole(docRole),
		Label:              strings.ToUpper(docLabel),
		ContentType:        docContentType,
		PageCount:          docPages,
		LeftMarginInches:   docMargin,
		FontFamily:         docFont,
		Language:           docLanguage,
		StampDutyPaidPaise: docStampDuty,
	}

	if docNarrationFile != "" {
		data, err := os.ReadFile(docNarrationFile)
		if err != nil {
			return fmt.Errorf("read narration file: %w", err)
		}
		d.Narration = string(data)
	}
	if docPageNumbers != "" {
		nums, err := parseIntList(docPageNumbers)
		if err != nil {
			return fmt.Errorf("parse --page-numbers: %w", err)
		}
		d.PageNumbers = nums
	}
	if docIndexEntries != "" {
		for _, e := range strings.Split(docIndexEntries, ",") {
			d.IndexEntries = append(d.IndexEntries, strings.ToUpper(strings.TrimSpace(e)))
		}
	}

	if dryRun {
		ui.DryRunMsg("Would add %s document %q to package %s", docRole, docName, p.Name)
		return nil
	}

	if err := m.AddDocument(ctx, p.ID, d); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	ui.Success("Added %s: %s", d.Role, output.Cyan(d.DisplayName))
	if d.Label != "" {
		ui.VerboseLog("Label: %s", d.Label)
	}
	return nil
}

func documentListRun(packageName string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := resolvePackage(ctx, s, packageName)
	if err != nil {
		return err
	}

	docs, err := s.ListDocuments(ctx, p.ID)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		ui.Info("No documents in package %s. Use 'jubee document add' or 'jubee document pick'.", p.Name)
		return nil
	}

	table := ui.Table([]string{"Name", "Role", "Label", "Pages", "Language", "Size"})
	for _, d := range docs {
		table.Append([]string{
			output.Cyan(d.DisplayName),
			string(d.Role),
			d.Label,
			fmt.Sprintf("%d", d.PageCount),
			d.Language,
			formatBytes(d.SizeBytes),
		})
	}
	table.Render()
	return nil
}

func documentPickRun(packageName string) error {
	pk, err := getPicker()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if docStorageKey == "" {
		entries, err := pk.List(ctx, docPickPrefix)
		if err != nil {
			return fmt.Errorf("list storage: %w", err)
		}
		if len(entries) == 0 {
			ui.Info("No objects in bucket.")
			return nil
		}
		table := ui.Table([]string{"Key", "Size", "Modified"})
		for _, e := range entries {
			table.Append([]string{e.Key, formatBytes(e.SizeBytes), timeAgo(e.LastModified)})
		}
		table.Render()
		ui.Info("Attach one with 'jubee document pick %s --key <key>'", packageName)
		return nil
	}

	m, err := getManager()
	if err != nil {
		return err
	}
	p, err := resolvePackage(ctx, dataStore, packageName)
	if err != nil {
		return err
	}

	d, err := pk.Select(ctx, docStorageKey, models.DocumentRole(docRole))
	if err != nil {
		return fmt.Errorf("select object: %w", err)
	}
	d.Label = strings.ToUpper(docLabel)

	if dryRun {
		ui.DryRunMsg("Would attach %s as %s to package %s", docStorageKey, docRole, p.Name)
		return nil
	}

	if err := m.AddDocument(ctx, p.ID, d); err != nil {
		return fmt.Errorf("add document: %w", err)
	}

	ui.Success("Attached %s: %s", d.Role, output.Cyan(d.DisplayName))
	return nil
}

// getPicker builds the storage picker from minio.* config.
func getPicker() (*picker.Picker, error) {
	endpoint := viper.GetString("minio.endpoint")
	if endpoint == "" {
		return nil, fmt.Errorf("object storage not configured: set minio.endpoint (run 'jubee config init')")
	}
	return picker.New(picker.Config{
		Endpoint:  endpoint,
		AccessKey: viper.GetString("minio.access_key"),
		SecretKey: viper.GetString("minio.secret_key"),
		Bucket:    viper.GetString("minio.bucket"),
		UseSSL:    viper.GetBool("minio.use_ssl"),
	})
}

func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	return nums, nil
}
