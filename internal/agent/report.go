package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// Reporter writes the end-of-task artifacts: the checkpoint report,
// the navigation graph, and the conversation transcript.
type Reporter struct {
	dir    string
	logger *zap.Logger
}

func NewReporter(dir string, logger *zap.Logger) *Reporter {
	return &Reporter{
		dir:    dir,
		logger: logger.Named("reporter"),
	}
}

func (r *Reporter) ensureDir() error {
	return os.MkdirAll(r.dir, 0o755)
}

// WriteCheckpointReport exports the checkpoint outcomes as markdown.
func (r *Reporter) WriteCheckpointReport(taskID string, objective string, checkpoints []*schemas.Checkpoint) (string, error) {
	if err := r.ensureDir(); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Task Report\n\n## Objective\n")
	b.WriteString(objective)
	b.WriteString("\n\n## Checkpoints\n\n")
	for _, cp := range checkpoints {
		fmt.Fprintf(&b, "### #%d: %s\n", cp.ID, cp.Description)
		fmt.Fprintf(&b, "**Status**: %s\n", cp.Status)
		if cp.Result != "" {
			fmt.Fprintf(&b, "**Result**: %s\n", cp.Result)
		}
		b.WriteString("\n")
	}

	path := filepath.Join(r.dir, fmt.Sprintf("task_%s_checkpoints.md", taskID))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write checkpoint report: %w", err)
	}
	r.logger.Info("Checkpoint report written", zap.String("path", path))
	return path, nil
}

// WriteGraphReport exports the navigation graph as markdown, grouping
// the visited pages by type and appending the raw navigation history.
func (r *Reporter) WriteGraphReport(taskID string, graph *NavGraph) (string, error) {
	if err := r.ensureDir(); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	nodes := graph.Nodes()

	var b strings.Builder
	b.WriteString("# Navigation Graph\n\n")
	fmt.Fprintf(&b, "**Pages visited**: %d\n\n", len(nodes))

	sections := []struct {
		pageType schemas.PageType
		heading  string
	}{
		{schemas.PageEntry, "Entry pages"},
		{schemas.PageList, "List pages"},
		{schemas.PageDetail, "Detail pages"},
		{schemas.PageOther, "Other pages"},
	}

	for _, section := range sections {
		var pages []*schemas.PageNode
		for _, url := range graph.History() {
			node, ok := nodes[url]
			if !ok || node.Type != section.pageType {
				continue
			}
			duplicate := false
			for _, p := range pages {
				if p.URL == node.URL {
					duplicate = true
					break
				}
			}
			if !duplicate {
				pages = append(pages, node)
			}
		}
		if len(pages) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s (%d)\n\n", section.heading, len(pages))
		for _, node := range pages {
			title := node.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Fprintf(&b, "### %s\n\n", title)
			fmt.Fprintf(&b, "- **URL**: %s\n", node.URL)
			fmt.Fprintf(&b, "- **Visits**: %d\n", node.VisitedCount)
			if node.Description != "" {
				fmt.Fprintf(&b, "- **Description**: %s\n", node.Description)
			}
			if parent, ok := nodes[node.ParentURL]; ok && node.ParentURL != "" {
				from := parent.Title
				if from == "" {
					from = truncate(parent.URL, 40)
				}
				fmt.Fprintf(&b, "- **Reached from**: %s\n", from)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Navigation history\n\n```\n")
	for i, url := range graph.History() {
		if node, ok := nodes[url]; ok {
			label := node.Title
			if label == "" {
				label = truncate(url, 60)
			}
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, node.Type, label)
		}
	}
	b.WriteString("```\n")

	path := filepath.Join(r.dir, fmt.Sprintf("task_%s_site_graph.md", taskID))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write graph report: %w", err)
	}
	r.logger.Info("Navigation graph report written", zap.String("path", path))
	return path, nil
}

type conversationExport struct {
	Objective    string                 `json:"objective"`
	SystemPrompt string                 `json:"system_prompt"`
	Summary      string                 `json:"history_summary,omitempty"`
	Messages     []Message              `json:"messages"`
	Stats        map[string]interface{} `json:"stats"`
	ExportedAt   time.Time              `json:"exported_at"`
}

// WriteConversationHistory exports the decision transcript as JSON for
// debugging and offline analysis.
func (r *Reporter) WriteConversationHistory(taskID string, objective string, conv *Conversation) (string, error) {
	if err := r.ensureDir(); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	export := conversationExport{
		Objective:    objective,
		SystemPrompt: staticSystemPrompt,
		Summary:      conv.HistorySummary(),
		Messages:     conv.Messages(),
		Stats:        conv.Stats(),
		ExportedAt:   time.Now().UTC(),
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation history: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("task_%s_conversation.json", taskID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write conversation history: %w", err)
	}
	r.logger.Info("Conversation history written", zap.String("path", path))
	return path, nil
}
