package schemas

import (
	"time"
)

// CheckpointStatus tracks the lifecycle of a single checkpoint. Transitions
// are monotone: pending -> in_progress -> completed, never backwards.
type CheckpointStatus string

const (
	CheckpointPending    CheckpointStatus = "pending"
	CheckpointInProgress CheckpointStatus = "in_progress"
	CheckpointCompleted  CheckpointStatus = "completed"
)

// Checkpoint is a state-oriented milestone of the overall objective. It
// describes a target state ("announcement list located"), not an action
// sequence, together with lenient criteria used to verify that state.
type Checkpoint struct {
	ID              int              `json:"id"`
	Description     string           `json:"description"`
	SuccessCriteria []string         `json:"success_criteria"`
	Status          CheckpointStatus `json:"status"`
	Result          string           `json:"result,omitempty"`
	Artifacts       []string         `json:"artifacts,omitempty"`
}

// PageType classifies a visited page for navigation hints.
type PageType string

const (
	PageEntry  PageType = "entry"
	PageList   PageType = "list"
	PageDetail PageType = "detail"
	PageOther  PageType = "other"
)

// PageNode is one page in the navigation graph. ParentURL is fixed at first
// creation and never overwritten; VisitedCount only ever grows.
type PageNode struct {
	URL          string   `json:"url"`
	Type         PageType `json:"page_type"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	VisitedCount int      `json:"visited_count"`
	ParentURL    string   `json:"parent_url,omitempty"`
}

// BBox is an element bounding box in viewport pixel coordinates.
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ElementRecord describes one interactive element found during an extraction
// pass. The ID is only unique within that single pass; it is regenerated on
// every extraction and must never be treated as stable across navigations.
type ElementRecord struct {
	ID             int    `json:"id"`
	Type           string `json:"type"`
	Role           string `json:"role"`
	Text           string `json:"text"`
	Selector       string `json:"selector"`
	UniqueSelector string `json:"uniqueSelector"`
	IsScrollable   bool   `json:"isScrollable"`
	BBox           BBox   `json:"bbox"`
}

// PageSnapshot memoizes extractor output for one URL.
type PageSnapshot struct {
	URL         string          `json:"url"`
	Timestamp   time.Time       `json:"timestamp"`
	Elements    []ElementRecord `json:"elements"`
	Fingerprint string          `json:"fingerprint"`
}

// Valid reports whether the snapshot may be served instead of re-extracting.
// All three conditions must hold: same URL, same content fingerprint, and
// younger than maxAge.
func (s *PageSnapshot) Valid(url, fingerprint string, now time.Time, maxAge time.Duration) bool {
	if s.URL != url {
		return false
	}
	if s.Fingerprint != fingerprint {
		return false
	}
	return now.Sub(s.Timestamp) <= maxAge
}

// DecisionKind enumerates the actions the decision oracle may choose.
type DecisionKind string

const (
	ActionClick          DecisionKind = "CLICK"
	ActionType           DecisionKind = "TYPE"
	ActionScroll         DecisionKind = "SCROLL"
	ActionBack           DecisionKind = "BACK"
	ActionForward        DecisionKind = "FORWARD"
	ActionRefresh        DecisionKind = "REFRESH"
	ActionTaskComplete   DecisionKind = "TASK_COMPLETE"
	ActionBatchExecute   DecisionKind = "BATCH_EXECUTE"
	ActionCheckDownloads DecisionKind = "CHECK_DOWNLOADS"
)

// Terminal reports whether the kind ends the task loop.
func (k DecisionKind) Terminal() bool { return k == ActionTaskComplete }

// Decision is the single structured action returned by the decision oracle
// for one step. Only the fields relevant to Action are populated.
type Decision struct {
	Action    DecisionKind `json:"action"`
	Reasoning string       `json:"reasoning"`

	// CLICK / TYPE / SCROLL
	ElementID int `json:"element_id,omitempty"`
	// TYPE
	Text string `json:"text,omitempty"`
	// SCROLL, signed pixels (positive scrolls down)
	ScrollAmount int `json:"scroll_amount,omitempty"`

	// TASK_COMPLETE
	Summary   string   `json:"summary,omitempty"`
	Citations []string `json:"citations,omitempty"`

	// BATCH_EXECUTE
	BatchElementIDs  []int  `json:"batch_element_ids,omitempty"`
	BatchDescription string `json:"batch_description,omitempty"`
}

// BatchItemData is what one batch unit extracts from a detail page.
type BatchItemData struct {
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	PDFURLs []string `json:"pdf_urls,omitempty"`
}

// BatchStatus marks the outcome of one batch item.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchFailed  BatchStatus = "failed"
)

// BatchResult records the outcome of one processed batch target. Targets
// skipped after a circuit-breaker abort produce no result at all.
type BatchResult struct {
	Index     int           `json:"index"`
	ElementID int           `json:"element_id"`
	Status    BatchStatus   `json:"status"`
	Data      BatchItemData `json:"data,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// StepRecord captures one loop iteration for the final task report.
type StepRecord struct {
	Step      int          `json:"step"`
	URL       string       `json:"url"`
	Action    DecisionKind `json:"action"`
	Reasoning string       `json:"reasoning"`
	ElementID int          `json:"element_id,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// TaskResult is returned to the calling layer when a task finishes, whether
// by TASK_COMPLETE or by step-budget exhaustion.
type TaskResult struct {
	Success         bool         `json:"success"`
	Summary         string       `json:"summary,omitempty"`
	SourceURL       string       `json:"source_url,omitempty"`
	Citations       []string     `json:"citations,omitempty"`
	Steps           []StepRecord `json:"steps"`
	ReportPath      string       `json:"report_path,omitempty"`
	GraphReportPath string       `json:"graph_report_path,omitempty"`
	HistoryPath     string       `json:"history_path,omitempty"`
	DownloadedFiles []string     `json:"downloaded_files,omitempty"`
	DownloadCount   int          `json:"download_count"`
	Error           string       `json:"error,omitempty"`
}

// CheckpointVerdict is the checkpoint oracle's answer for one check.
type CheckpointVerdict struct {
	Completed bool   `json:"completed"`
	Reason    string `json:"reason"`
}
