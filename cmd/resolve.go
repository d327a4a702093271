package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/output"
	"github.com/jubeelegal/jubee/internal/resolve"
)

var (
	resolveStrategy      string
	resolveMeta          string
	resolveFromStorage   string
	resolveTarget        string
	resolveNarration     string
	resolveNarrationFile string
	resolveMode          string
	resolvePlacement     string
	resolveYes           bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <package> <defect-id>",
	Short: "Resolve a defect",
	Long: `Resolve one defect with a chosen strategy and wait for the outcome.

Strategies:
  upload             Attach a new document (--meta or --from-storage)
  replace-reference  Point the reference at an existing document (--target)
  remove-reference   Drop the reference from the narration (--narration or --narration-file)
  direct-fix         Apply the automated correction
  translate          Provide a translation (--mode use-existing with --meta,
                     or --mode translate-now for an AI draft you approve)`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveRun(args[0], args[1])
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveStrategy, "strategy", "", "Resolution strategy (required)")
	resolveCmd.Flags().StringVar(&resolveMeta, "meta", "", "JSON file describing the document to attach")
	resolveCmd.Flags().StringVar(&resolveFromStorage, "from-storage", "", "Object storage key of the document to attach")
	resolveCmd.Flags().StringVar(&resolveTarget, "target", "", "Existing document ID for replace-reference")
	resolveCmd.Flags().StringVar(&resolveNarration, "narration", "", "Edited narration text for remove-reference")
	resolveCmd.Flags().StringVar(&resolveNarrationFile, "narration-file", "", "File holding the edited narration")
	resolveCmd.Flags().StringVar(&resolveMode, "mode", "translate-now", "Translate mode: translate-now, use-existing")
	resolveCmd.Flags().StringVar(&resolvePlacement, "placement", "append-translated-at-end", "Placement for partial translations: replace-original-pages, append-translated-at-end, insert-after-original-page")
	resolveCmd.Flags().BoolVarP(&resolveYes, "yes", "y", false, "Approve the translation draft without prompting")
	_ = resolveCmd.MarkFlagRequired("strategy")

	rootCmd.AddCommand(resolveCmd)
}

func resolveRun(packageName, defectID string) error {
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

	strategy := models.ResolutionStrategy(resolveStrategy)
	payload, err := buildPayload(ctx, strategy)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would resolve defect %s with %s", d.ID, strategy)
		return nil
	}

	h, err := m.Resolve(ctx, p.ID, d.ID, strategy, payload)
	if err != nil {
		return fmt.Errorf("start resolution: %w", err)
	}

	// The AI translation path stages a draft for review before anything
	// is committed to the package.
	if strategy == models.StrategyTranslate && models.TranslationMode(resolveMode) == models.TranslateNow {
		if err := reviewDraft(ctx, h, d); err != nil {
			h.Cancel()
			_, _ = m.Commit(ctx, p.ID, h)
			return err
		}
	}

	outcome, err := m.Commit(ctx, p.ID, h)
	if err != nil {
		return fmt.Errorf("commit resolution: %w", err)
	}

	switch outcome.Status {
	case resolve.OutcomeResolved:
		ui.Success("Defect %s resolved", output.Cyan(d.ID[:12]))
	case resolve.OutcomeCancelled:
		ui.Warning("Resolution cancelled; defect %s is pending again", d.ID[:12])
	default:
		return fmt.Errorf("resolution failed: %v", outcome.Err)
	}
	return nil
}

// buildPayload assembles the strategy payload from command flags.
func buildPayload(ctx context.Context, strategy models.ResolutionStrategy) (resolve.Payload, error) {
	switch strategy {
	case models.StrategyUpload:
		ref, err := loadDocumentRef(ctx)
		if err != nil {
			return nil, err
		}
		return resolve.UploadPayload{Ref: ref}, nil

	case models.StrategyReplaceReference:
		if resolveTarget == "" {
			return nil, fmt.Errorf("replace-reference requires --target")
		}
		return resolve.ReplaceReferencePayload{TargetDocumentID: resolveTarget}, nil

	case models.StrategyRemoveReference:
		narration := resolveNarration
		if resolveNarrationFile != "" {
			data, err := os.ReadFile(resolveNarrationFile)
			if err != nil {
				return nil, fmt.Errorf("read narration file: %w", err)
			}
			narration = string(data)
		}
		if narration == "" {
			return nil, fmt.Errorf("remove-reference requires --narration or --narration-file")
		}
		return resolve.RemoveReferencePayload{EditedNarration: narration}, nil

	case models.StrategyDirectFix:
		return resolve.DirectFixPayload{}, nil

	case models.StrategyTranslate:
		mode := models.TranslationMode(resolveMode)
		if mode == models.TranslateUseExisting {
			ref, err := loadDocumentRef(ctx)
			if err != nil {
				return nil, err
			}
			return resolve.TranslatePayload{Mode: mode, Existing: ref}, nil
		}
		return resolve.TranslatePayload{Mode: mode}, nil

	default:
		return nil, fmt.Errorf("unknown strategy %q", resolveStrategy)
	}
}

// loadDocumentRef reads the document to attach from --meta or --from-storage.
func loadDocumentRef(ctx context.Context) (*models.DocumentRef, error) {
	switch {
	case resolveMeta != "":
		data, err := os.ReadFile(resolveMeta)
		if err != nil {
			return nil, fmt.Errorf("read meta file: %w", err)
		}
		var ref models.DocumentRef
		if err := json.Unmarshal(data, &ref); err != nil {
			return nil, fmt.Errorf("parse meta file: %w", err)
		}
		return &ref, nil

	case resolveFromStorage != "":
		pk, err := getPicker()
		if err != nil {
			return nil, err
		}
		return pk.Select(ctx, resolveFromStorage, models.RoleAnnexure)

	default:
		return nil, fmt.Errorf("provide the document with --meta <file.json> or --from-storage <key>")
	}
}

// reviewDraft waits for the AI translation draft, shows it, and stages the
// approval (and placement, for partial translations).
func reviewDraft(ctx context.Context, h *resolve.Handle, d *models.Defect) error {
	ui.Info("Requesting translation draft...")
	draft, err := h.Draft(ctx)
	if err != nil {
		return fmt.Errorf("translation draft: %w", err)
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, draft)
	fmt.Fprintln(ui.Out)

	if !resolveYes {
		fmt.Fprint(ui.Out, "Accept this translation? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			return fmt.Errorf("translation rejected")
		}
	}

	if err := h.Approve(draft); err != nil {
		return fmt.Errorf("approve draft: %w", err)
	}

	if d.Kind == models.DefectTranslationRequiredPartial {
		if err := h.Place(models.PagePlacement(resolvePlacement)); err != nil {
			return fmt.Errorf("place translated pages: %w", err)
		}
	}
	return nil
}
