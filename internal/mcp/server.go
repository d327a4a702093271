package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jubeelegal/jubee/internal/models"
	"github.com/jubeelegal/jubee/internal/resolve"
	"github.com/jubeelegal/jubee/internal/store"
	"github.com/jubeelegal/jubee/internal/workspace"
)

// Server wraps the jubee data layer and exposes it as MCP tools.
type Server struct {
	store   store.Store
	manager *workspace.Manager
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(s store.Store, m *workspace.Manager) *Server {
	return &Server{store: s, manager: m}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("jubee", "1.0.0", server.WithToolCapabilities(true))

	// Register all tools
	srv.AddTool(s.listPackagesTool())
	srv.AddTool(s.packageStatusTool())
	srv.AddTool(s.scanTool())
	srv.AddTool(s.listDefectsTool())
	srv.AddTool(s.resolveDefectTool())
	srv.AddTool(s.ignoreDefectTool())
	srv.AddTool(s.proceedTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// jubee_list_packages
func (s *Server) listPackagesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jubee_list_packages",
		mcp.WithDescription("List all filing packages. Returns a JSON array of packages with id, name, case category, court profile, and status (intake/scrutiny/ready/filed)."),
		mcp.WithString("status", mcp.Description("Filter by package status: intake, scrutiny, ready, filed")),
	)
	return tool, s.handleListPackages
}

func (s *Server) handleListPackages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := request.GetString("status", "")
	packages, err := s.store.ListPackages(ctx, models.PackageStatus(status))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list packages: %v", err)), nil
	}

	type packageOut struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		CaseCategory string `json:"case_category"`
		CourtProfile string `json:"court_profile"`
		Status       string `json:"status"`
		CreatedAt    string `json:"created_at"`
	}

	out := make([]packageOut, len(packages))
	for i, p := range packages {
		out[i] = packageOut{
			ID:           p.ID,
			Name:         p.Name,
			CaseCategory: p.CaseCategory,
			CourtProfile: p.CourtProfile,
			Status:       string(p.Status),
			CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal packages: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// jubee_package_status
func (s *Server) packageStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jubee_package_status",
		mcp.WithDescription("Get detailed status for a filing package: documents, latest scrutiny pass, and pending defect counts by severity. Resolves the package by name."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name")),
	)
	return tool, s.handlePackageStatus
}

func (s *Server) handlePackageStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageName, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}

	p, err := s.resolvePackage(ctx, packageName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", packageName)), nil
	}

	eng, err := s.manager.Open(ctx, p.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to open package: %v", err)), nil
	}

	type docOut struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
		Label       string `json:"label,omitempty"`
		Language    string `json:"language"`
		PageCount   int    `json:"page_count"`
	}
	docs := eng.Docs().All()
	docOuts := make([]docOut, len(docs))
	for i, d := range docs {
		docOuts[i] = docOut{
			ID:          d.ID,
			DisplayName: d.DisplayName,
			Role:        string(d.Role),
			Label:       d.Label,
			Language:    d.Language,
			PageCount:   d.PageCount,
		}
	}

	result := map[string]any{
		"package": map[string]any{
			"id":            p.ID,
			"name":          p.Name,
			"case_category": p.CaseCategory,
			"court_profile": p.CourtProfile,
			"status":        string(p.Status),
		},
		"documents": docOuts,
	}

	if pass := eng.Pass(); pass != nil {
		summary := eng.Resolver().PendingSummary(pass.Defects)
		result["latest_pass"] = map[string]any{
			"id":           pass.ID,
			"snapshot_id":  pass.SnapshotID,
			"defect_count": len(pass.Defects),
			"created_at":   pass.CreatedAt.Format(time.RFC3339),
			"pending": map[string]int{
				"must_fix": summary.MustFix,
				"review":   summary.Review,
				"advisory": summary.Advisory,
				"total":    summary.Total(),
			},
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// jubee_scan
func (s *Server) scanTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jubee_scan",
		mcp.WithDescription("Run a scrutiny pass over a filing package: evaluate every compliance rule against the current document set and return the detected defects as JSON, ordered by severity."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name")),
	)
	return tool, s.handleScan
}

func (s *Server) handleScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageName, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}

	p, err := s.resolvePackage(ctx, packageName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", packageName)), nil
	}

	pass, err := s.manager.Scan(ctx, p.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scrutiny pass failed: %v", err)), nil
	}

	result := map[string]any{
		"pass_id":     pass.ID,
		"snapshot_id": pass.SnapshotID,
		"defects":     defectsOut(pass.Defects),
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal pass: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// jubee_list_defects
func (s *Server) listDefectsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jubee_list_defects",
		mcp.WithDescription("List defects from the latest scrutiny pass of a package, optionally filtered by status and/or severity. Returns a JSON array ordered by severity (must-fix first)."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name")),
		mcp.WithString("status", mcp.Description("Status filter: pending, resolved, ignored")),
		mcp.WithString("severity", mcp.Description("Severity filter: must-fix, review, advisory")),
	)
	return tool, s.handleListDefects
}

func (s *Server) handleListDefects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageName, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}

	p, err := s.resolvePackage(ctx, packageName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", packageName)), nil
	}

	filter := store.DefectListFilter{PackageID: p.ID}
	if status := request.GetString("status", ""); status != "" {
		filter.Status = models.DefectStatus(status)
	}
	if severity := request.GetString("severity", ""); severity != "" {
		filter.Severity = models.DefectSeverity(severity)
	}

	defects, err := s.store.ListDefects(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list defects: %v", err)), nil
	}

	data, err := json.Marshal(defectsOut(defects))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal defects: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// jubee_resolve_defect
func (s *Server) resolveDefectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jubee_resolve_defect",
		mcp.WithDescription("Resolve a single defect and wait for the outcome. Supported strategies: direct-fix (automated correction), remove-reference (requires edited_narration with the dangling annexure reference removed), replace-reference (requires target_document_id of the existing document to point the reference at). Upload and translate strategies need file or review interaction and are only available through the CLI or REST API."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name")),
		mcp.WithString("defect_id", mcp.Required(), mcp.Description("Defect ID or unique prefix")),
		mcp.WithString("strategy", mcp.Required(), mcp.Description("Resolution strategy: direct-fix, remove-reference, replace-reference")),
		mcp.WithString("edited_narration", mcp.Description("Replacement narration text for remove-reference")),
		mcp.WithString("target_document_id", mcp.Description("Existing document ID for replace-reference")),
	)
	return tool, s.handleResolveDefect
}

func (s *Server) handleResolveDefect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageName, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}
	defectArg, err := request.RequireString("defect_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: defect_id"), nil
	}
	strategyArg, err := request.RequireString("strategy")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: strategy"), nil
	}

	p, err := s.resolvePackage(ctx, packageName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", packageName)), nil
	}
	d, err := s.findDefect(ctx, p.ID, defectArg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	strategy := models.ResolutionStrategy(strategyArg)
	var payload resolve.Payload
	switch strategy {
	case models.StrategyDirectFix:
		payload = resolve.DirectFixPayload{}
	case models.StrategyRemoveReference:
		narration := request.GetString("edited_narration", "")
		if narration == "" {
			return mcp.NewToolResultError("remove-reference requires edited_narration"), nil
		}
		payload = resolve.RemoveReferencePayload{EditedNarration: narration}
	case models.StrategyReplaceReference:
		target := request.GetString("target_document_id", "")
		if target == "" {
			return mcp.NewToolResultError("replace-reference requires target_document_id"), nil
		}
		payload = resolve.ReplaceReferencePayload{TargetDocumentID: target}
	case models.StrategyUpload, models.StrategyTranslate:
		return mcp.NewToolResultError(fmt.Sprintf("strategy %s requires file or review interaction; use the CLI or REST API", strategy)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown strategy: %s", strategyArg)), nil
	}

	h, err := s.manager.Resolve(ctx, p.ID, d.ID, strategy, payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start resolution: %v", err)), nil
	}

	outcome, err := s.manager.Commit(ctx, p.ID, h)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to commit resolution: %v", err)), nil
	}

	result := map[string]any{
		"defect_id": d.ID,
		"strategy":  string(strategy),
		"outcome":   string(outcome.Status),
	}
	if outcome.Err != nil {
		result["error"] = outcome.Err.Error()
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal outcome: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// jubee_ignore_defect
func (s *Server) ignoreDefectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jubee_ignore_defect",
		mcp.WithDescription("Mark a defect as ignored. Ignored defects no longer count against the completion gate but stay visible in the pass record."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name")),
		mcp.WithString("defect_id", mcp.Required(), mcp.Description("Defect ID or unique prefix")),
	)
	return tool, s.handleIgnoreDefect
}

func (s *Server) handleIgnoreDefect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageName, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}
	defectArg, err := request.RequireString("defect_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: defect_id"), nil
	}

	p, err := s.resolvePackage(ctx, packageName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", packageName)), nil
	}
	d, err := s.findDefect(ctx, p.ID, defectArg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.manager.Ignore(ctx, p.ID, d.ID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to ignore defect: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(`{"defect_id":%q,"status":"ignored"}`, d.ID)), nil
}

// jubee_proceed
func (s *Server) proceedTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("jubee_proceed",
		mcp.WithDescription("Run the completion gate for a package. Filing is allowed when no pending defects remain, or when override is set. The decision is recorded either way."),
		mcp.WithString("package", mcp.Required(), mcp.Description("Package name")),
		mcp.WithBoolean("override", mcp.Description("Proceed despite pending defects")),
	)
	return tool, s.handleProceed
}

func (s *Server) handleProceed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packageName, err := request.RequireString("package")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: package"), nil
	}
	override := request.GetBool("override", false)

	p, err := s.resolvePackage(ctx, packageName)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("package not found: %s", packageName)), nil
	}

	res, err := s.manager.Proceed(ctx, p.ID, override)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("completion gate failed: %v", err)), nil
	}

	result := map[string]any{
		"allowed":  res.Allowed,
		"override": res.Override,
		"pending": map[string]int{
			"must_fix": res.Summary.MustFix,
			"review":   res.Summary.Review,
			"advisory": res.Summary.Advisory,
			"total":    res.Summary.Total(),
		},
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal decision: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func defectsOut(defects []*models.Defect) []map[string]any {
	out := make([]map[string]any, len(defects))
	for i, d := range defects {
		m := map[string]any{
			"id":          d.ID,
			"kind":        string(d.Kind),
			"severity":    string(d.Severity),
			"description": d.Description,
			"explanation": d.Explanation,
			"status":      string(d.Status),
		}
		if d.RelatedDocumentID != "" {
			m["related_document_id"] = d.RelatedDocumentID
		}
		if d.AnnexureLabel != "" {
			m["annexure_label"] = d.AnnexureLabel
		}
		if d.PageNumber != 0 {
			m["page_number"] = d.PageNumber
		}
		if len(d.Pages) > 0 {
			m["pages"] = d.Pages
		}
		out[i] = m
	}
	return out
}

func (s *Server) resolvePackage(ctx context.Context, name string) (*models.FilingPackage, error) {
	if p, err := s.store.GetPackageByName(ctx, name); err == nil {
		return p, nil
	}
	if p, err := s.store.GetPackage(ctx, name); err == nil {
		return p, nil
	}
	return nil, fmt.Errorf("package not found: %s", name)
}

// findDefect finds a defect in the package's latest pass by full ID or
// unique prefix.
func (s *Server) findDefect(ctx context.Context, packageID, id string) (*models.Defect, error) {
	defects, err := s.store.ListDefects(ctx, store.DefectListFilter{PackageID: packageID})
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
