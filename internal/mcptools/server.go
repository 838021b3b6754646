package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with the briefing tools registered.
func NewMCPServer(svc *BriefingService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "briefing",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_pipeline",
		Description: "Execute a pipeline end to end: select articles, generate content, reconcile citations, render, convert and deliver. Returns the report id and per-stage status.",
	}, svc.RunPipeline)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "test_step",
		Description: "Run a single pipeline step (1-5) against an input context. Results are cached per user by input and config; force_refresh bypasses the cache.",
	}, svc.TestStep)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_report",
		Description: "Fetch a report with its content and delivery log.",
	}, svc.GetReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_reports",
		Description: "List a user's reports, newest first. Optionally filter by pipeline and status.",
	}, svc.ListReports)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_pipeline",
		Description: "Export a pipeline and the step configs it references as a portable JSON or YAML bundle, with a Mermaid diagram of its stages.",
	}, svc.ExportPipeline)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "import_pipeline",
		Description: "Import a pipeline bundle. Fresh records are created for the caller and the schedule is left disabled.",
	}, svc.ImportPipeline)

	return server
}

// NewHTTPHandler serves the MCP server over the streamable HTTP transport.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
