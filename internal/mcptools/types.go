package mcptools

// --- MCP tool types ---
// Every tool takes the caller's user id explicitly. There is no session
// identity behind the transport.

// RunPipelineInput is the input for the run_pipeline tool.
type RunPipelineInput struct {
	UserID     string `json:"user_id" jsonschema:"owner of the pipeline"`
	PipelineID string `json:"pipeline_id" jsonschema:"pipeline to execute"`
	RunType    string `json:"run_type,omitempty" jsonschema:"manual (default) or scheduled"`
}

// StageOutput is one stage of a finished run.
type StageOutput struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// RunPipelineOutput is the result of the run_pipeline tool.
type RunPipelineOutput struct {
	RunID          string        `json:"run_id"`
	ReportID       string        `json:"report_id"`
	Title          string        `json:"title"`
	Status         string        `json:"status"`
	ArticleCount   int           `json:"article_count"`
	ArtifactPath   string        `json:"artifact_path,omitempty"`
	DeliveryStatus string        `json:"delivery_status,omitempty"`
	Stages         []StageOutput `json:"stages"`
}

// TestStepInput is the input for the test_step tool.
type TestStepInput struct {
	UserID       string `json:"user_id" jsonschema:"caller whose library and cache are used"`
	StepNumber   int    `json:"step_number" jsonschema:"1 select, 2 generate, 3 format, 4 output, 5 deliver"`
	InputContext any    `json:"input_context,omitempty" jsonschema:"the step's input as a JSON object"`
	ConfigID     string `json:"step_config_id,omitempty" jsonschema:"library record the step runs with (steps 2-5)"`
	ForceRefresh bool   `json:"force_refresh,omitempty" jsonschema:"bypass the step cache"`
}

// TestStepOutput is the result of the test_step tool.
type TestStepOutput struct {
	StepNumber int    `json:"step_number"`
	Hash       string `json:"hash"`
	Cached     bool   `json:"cached"`
	Result     any    `json:"result"`
}

// GetReportInput is the input for the get_report tool.
type GetReportInput struct {
	UserID   string `json:"user_id" jsonschema:"owner of the report"`
	ReportID string `json:"report_id" jsonschema:"report to fetch"`
}

// ReportOutput is a stored report.
type ReportOutput struct {
	ID         string          `json:"id"`
	PipelineID string          `json:"pipeline_id,omitempty"`
	Title      string          `json:"title"`
	Status     string          `json:"status"`
	RunType    string          `json:"run_type,omitempty"`
	Content    string          `json:"content,omitempty"`
	ArticleIDs []string        `json:"article_ids"`
	Deliveries []DeliveryEntry `json:"deliveries"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// DeliveryEntry is one delivery attempt recorded on a report.
type DeliveryEntry struct {
	Channel    string   `json:"channel"`
	Status     string   `json:"status"`
	Subject    string   `json:"subject,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Error      string   `json:"error,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// ListReportsInput is the input for the list_reports tool.
type ListReportsInput struct {
	UserID     string `json:"user_id" jsonschema:"owner of the reports"`
	PipelineID string `json:"pipeline_id,omitempty" jsonschema:"only reports of this pipeline"`
	Status     string `json:"status,omitempty" jsonschema:"processing, completed or failed"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of reports (default 20)"`
}

// ListReportsOutput is the result of the list_reports tool. Content is
// omitted; use get_report for the body.
type ListReportsOutput struct {
	Reports []ReportOutput `json:"reports"`
	Total   int            `json:"total"`
}

// ExportPipelineInput is the input for the export_pipeline tool.
type ExportPipelineInput struct {
	UserID     string `json:"user_id" jsonschema:"owner of the pipeline"`
	PipelineID string `json:"pipeline_id" jsonschema:"pipeline to export"`
	Format     string `json:"format,omitempty" jsonschema:"json (default) or yaml"`
}

// ExportPipelineOutput is the result of the export_pipeline tool.
type ExportPipelineOutput struct {
	Format  string `json:"format"`
	Bundle  string `json:"bundle"`
	Mermaid string `json:"mermaid"`
}

// ImportPipelineInput is the input for the import_pipeline tool.
type ImportPipelineInput struct {
	UserID string `json:"user_id" jsonschema:"user who will own the imported records"`
	Bundle string `json:"bundle" jsonschema:"pipeline bundle as JSON or YAML text"`
}

// ImportPipelineOutput is the result of the import_pipeline tool.
type ImportPipelineOutput struct {
	PipelineID string `json:"pipeline_id"`
	Name       string `json:"name"`
}
