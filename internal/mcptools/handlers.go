package mcptools

import (
	"bytes"
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/briefing/internal/export"
	"github.com/dusk-indust/briefing/internal/orchestrator"
	"github.com/dusk-indust/briefing/internal/store"
)

const defaultListLimit = 20

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// BriefingService handles MCP tool calls against a store and executor.
type BriefingService struct {
	store store.Store
	exec  *orchestrator.Executor
}

// NewBriefingService creates a BriefingService.
func NewBriefingService(s store.Store, exec *orchestrator.Executor) *BriefingService {
	return &BriefingService{store: s, exec: exec}
}

// RunPipeline executes a pipeline end to end.
func (s *BriefingService) RunPipeline(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunPipelineInput,
) (*mcp.CallToolResult, RunPipelineOutput, error) {
	runType := orchestrator.RunManual
	switch input.RunType {
	case "", orchestrator.RunManual:
	case orchestrator.RunScheduled:
		runType = orchestrator.RunScheduled
	default:
		return nil, RunPipelineOutput{}, fmt.Errorf("run_type must be manual or scheduled, got %q", input.RunType)
	}

	summary, err := s.exec.Run(ctx, input.UserID, input.PipelineID, orchestrator.RunOptions{RunType: runType})
	if err != nil {
		return nil, RunPipelineOutput{}, err
	}

	out := RunPipelineOutput{
		RunID:        summary.RunID,
		ReportID:     summary.ReportID,
		Title:        summary.Title,
		Status:       string(summary.Status),
		ArticleCount: summary.ArticleCount,
		Stages:       make([]StageOutput, 0, len(summary.Stages)),
	}
	if summary.Artifact != nil {
		out.ArtifactPath = summary.Artifact.Path
	}
	if summary.Delivery != nil {
		out.DeliveryStatus = summary.Delivery.Status
	}
	for _, st := range summary.Stages {
		out.Stages = append(out.Stages, StageOutput{
			Stage:      st.Name,
			Status:     string(st.Status),
			DurationMS: st.Duration.Milliseconds(),
			Error:      st.Error,
		})
	}
	return nil, out, nil
}

// TestStep runs one stage in isolation through the step cache.
func (s *BriefingService) TestStep(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input TestStepInput,
) (*mcp.CallToolResult, TestStepOutput, error) {
	req := orchestrator.TestRequest{
		UserID:       input.UserID,
		Step:         input.StepNumber,
		ConfigRef:    input.ConfigID,
		ForceRefresh: input.ForceRefresh,
	}
	if input.InputContext != nil {
		raw, err := jsonAPI.Marshal(input.InputContext)
		if err != nil {
			return nil, TestStepOutput{}, fmt.Errorf("encode input_context: %w", err)
		}
		req.Input = raw
	}

	res, err := s.exec.TestStep(ctx, req)
	if err != nil {
		return nil, TestStepOutput{}, err
	}

	out := TestStepOutput{StepNumber: res.Step, Hash: res.Hash, Cached: res.Cached}
	if len(res.Result) > 0 {
		if err := jsonAPI.Unmarshal(res.Result, &out.Result); err != nil {
			return nil, TestStepOutput{}, fmt.Errorf("decode step result: %w", err)
		}
	}
	return nil, out, nil
}

// GetReport returns one report with its content and delivery log.
func (s *BriefingService) GetReport(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetReportInput,
) (*mcp.CallToolResult, ReportOutput, error) {
	rep, err := s.store.GetReport(ctx, input.ReportID)
	if err != nil {
		return nil, ReportOutput{}, err
	}
	if rep == nil || rep.UserID != input.UserID {
		return nil, ReportOutput{}, fmt.Errorf("report %s not found", input.ReportID)
	}
	return nil, toReportOutput(*rep, true), nil
}

// ListReports lists a user's reports, newest first.
func (s *BriefingService) ListReports(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListReportsInput,
) (*mcp.CallToolResult, ListReportsOutput, error) {
	if input.UserID == "" {
		return nil, ListReportsOutput{}, fmt.Errorf("user_id is required")
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	reports, err := s.store.ListReports(ctx, store.ReportQuery{
		UserID:     input.UserID,
		PipelineID: input.PipelineID,
		Status:     store.ReportStatus(input.Status),
		Limit:      limit,
	})
	if err != nil {
		return nil, ListReportsOutput{}, err
	}

	out := ListReportsOutput{Reports: make([]ReportOutput, 0, len(reports)), Total: len(reports)}
	for _, r := range reports {
		out.Reports = append(out.Reports, toReportOutput(r, false))
	}
	return nil, out, nil
}

// ExportPipeline renders a pipeline and its step configs as a portable bundle.
func (s *BriefingService) ExportPipeline(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExportPipelineInput,
) (*mcp.CallToolResult, ExportPipelineOutput, error) {
	format := input.Format
	if format == "" {
		format = export.FormatJSON
	}
	b, err := export.Export(ctx, s.store, input.UserID, input.PipelineID)
	if err != nil {
		return nil, ExportPipelineOutput{}, err
	}
	var buf bytes.Buffer
	if err := export.Encode(&buf, b, format); err != nil {
		return nil, ExportPipelineOutput{}, err
	}
	return nil, ExportPipelineOutput{
		Format:  format,
		Bundle:  buf.String(),
		Mermaid: export.GenerateMermaid(b),
	}, nil
}

// ImportPipeline creates fresh records from a bundle for the caller.
func (s *BriefingService) ImportPipeline(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ImportPipelineInput,
) (*mcp.CallToolResult, ImportPipelineOutput, error) {
	if input.UserID == "" {
		return nil, ImportPipelineOutput{}, fmt.Errorf("user_id is required")
	}
	b, err := export.Decode([]byte(input.Bundle), "")
	if err != nil {
		return nil, ImportPipelineOutput{}, err
	}
	p, err := export.Import(ctx, s.store, input.UserID, b)
	if err != nil {
		return nil, ImportPipelineOutput{}, err
	}
	return nil, ImportPipelineOutput{PipelineID: p.ID, Name: p.Name}, nil
}

func toReportOutput(r store.Report, withContent bool) ReportOutput {
	out := ReportOutput{
		ID:         r.ID,
		PipelineID: r.PipelineID,
		Title:      r.Title,
		Status:     string(r.Status),
		RunType:    r.RunType,
		ArticleIDs: r.ArticleIDs,
		Deliveries: make([]DeliveryEntry, 0, len(r.DeliveryLog)),
		Error:      r.Error,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if out.ArticleIDs == nil {
		out.ArticleIDs = []string{}
	}
	if withContent {
		out.Content = r.Content
	}
	for _, d := range r.DeliveryLog {
		out.Deliveries = append(out.Deliveries, DeliveryEntry{
			Channel:    d.Channel,
			Status:     d.Status,
			Subject:    d.Subject,
			Recipients: d.Recipients,
			Error:      d.Error,
			Timestamp:  d.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return out
}
