// Package status summarizes report runs per pipeline and flags reports that
// have been left in processing.
package status

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dusk-indust/briefing/internal/delivery"
	"github.com/dusk-indust/briefing/internal/store"
)

// DefaultStuckAfter is used when no threshold is configured.
const DefaultStuckAfter = 30 * time.Minute

// ReportInfo describes the state of one report.
type ReportInfo struct {
	ID         string             `json:"id"`
	PipelineID string             `json:"pipeline_id,omitempty"`
	Title      string             `json:"title"`
	Status     store.ReportStatus `json:"status"`
	RunType    string             `json:"run_type,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	Age        time.Duration      `json:"age_ns"`
	// Stuck is set for reports still processing past the threshold. They
	// are never recovered automatically.
	Stuck            bool   `json:"stuck"`
	Deliveries       int    `json:"deliveries"`
	FailedDeliveries int    `json:"failed_deliveries"`
	Error            string `json:"error,omitempty"`
}

// PipelineStatus aggregates the reports of one pipeline.
type PipelineStatus struct {
	PipelineID string      `json:"pipeline_id"`
	Name       string      `json:"name"`
	Schedule   string      `json:"schedule,omitempty"`
	Enabled    bool        `json:"schedule_enabled"`
	Total      int         `json:"total"`
	Completed  int         `json:"completed"`
	Processing int         `json:"processing"`
	Stuck      int         `json:"stuck"`
	Last       *ReportInfo `json:"last,omitempty"`
}

// Summary is the status of a user's pipelines and reports.
type Summary struct {
	Pipelines []PipelineStatus `json:"pipelines"`
	Reports   []ReportInfo     `json:"reports"`
	Stuck     int              `json:"stuck"`
}

// Describe builds the ReportInfo of r as seen at now.
func Describe(r store.Report, now time.Time, stuckAfter time.Duration) ReportInfo {
	if stuckAfter <= 0 {
		stuckAfter = DefaultStuckAfter
	}
	info := ReportInfo{
		ID:         r.ID,
		PipelineID: r.PipelineID,
		Title:      r.Title,
		Status:     r.Status,
		RunType:    r.RunType,
		CreatedAt:  r.CreatedAt,
		Age:        now.Sub(r.CreatedAt),
		Deliveries: len(r.DeliveryLog),
		Error:      r.Error,
	}
	info.Stuck = r.Status == store.ReportProcessing && info.Age > stuckAfter
	for _, e := range r.DeliveryLog {
		if e.Status == delivery.StatusFailed {
			info.FailedDeliveries++
		}
	}
	return info
}

// Summarize groups reports by pipeline. Pipelines without reports are still
// listed; reports of deleted pipelines are grouped under their id.
func Summarize(pipelines []store.Pipeline, reports []store.Report, now time.Time, stuckAfter time.Duration) Summary {
	byID := make(map[string]*PipelineStatus, len(pipelines))
	var order []string
	add := func(id, name string) *PipelineStatus {
		if ps, ok := byID[id]; ok {
			return ps
		}
		ps := &PipelineStatus{PipelineID: id, Name: name}
		byID[id] = ps
		order = append(order, id)
		return ps
	}
	for _, p := range pipelines {
		ps := add(p.ID, p.Name)
		ps.Schedule = p.Schedule
		ps.Enabled = p.ScheduleEnabled
	}

	sorted := append([]store.Report(nil), reports...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	sum := Summary{Reports: make([]ReportInfo, 0, len(sorted))}
	for _, r := range sorted {
		info := Describe(r, now, stuckAfter)
		sum.Reports = append(sum.Reports, info)

		ps := add(r.PipelineID, r.PipelineID)
		ps.Total++
		switch r.Status {
		case store.ReportCompleted:
			ps.Completed++
		case store.ReportProcessing:
			ps.Processing++
		}
		if info.Stuck {
			ps.Stuck++
			sum.Stuck++
		}
		if ps.Last == nil {
			last := info
			ps.Last = &last
		}
	}

	sum.Pipelines = make([]PipelineStatus, 0, len(order))
	for _, id := range order {
		sum.Pipelines = append(sum.Pipelines, *byID[id])
	}
	return sum
}

// Load reads a user's pipelines and reports and summarizes them.
func Load(ctx context.Context, s store.Store, userID string, now time.Time, stuckAfter time.Duration) (Summary, error) {
	pipelines, err := s.ListPipelines(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("status: list pipelines: %w", err)
	}
	reports, err := s.ListReports(ctx, store.ReportQuery{UserID: userID})
	if err != nil {
		return Summary{}, fmt.Errorf("status: list reports: %w", err)
	}
	return Summarize(pipelines, reports, now, stuckAfter), nil
}

// Print writes a human-readable table of sum.
func Print(w io.Writer, sum Summary) {
	if len(sum.Pipelines) == 0 {
		fmt.Fprintln(w, "No pipelines found.")
		fmt.Fprintln(w, "Run 'briefing import <file>' or 'briefing seed' to create one.")
		return
	}
	for i, ps := range sum.Pipelines {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Pipeline: %s (%s)\n", ps.Name, ps.PipelineID)
		if ps.Schedule != "" {
			state := "disabled"
			if ps.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(w, "  schedule: %s [%s]\n", ps.Schedule, state)
		}
		fmt.Fprintf(w, "  reports: %d total, %d completed, %d processing\n", ps.Total, ps.Completed, ps.Processing)
		if ps.Last != nil {
			marker := "  "
			if ps.Last.Stuck {
				marker = "!!"
			}
			fmt.Fprintf(w, "  %s last: %-30s [%s] %s\n", marker, ps.Last.Title, ps.Last.Status, ps.Last.CreatedAt.Format(time.RFC3339))
		}
		if ps.Stuck > 0 {
			fmt.Fprintf(w, "  %d report(s) stuck in processing\n", ps.Stuck)
		}
	}
}
