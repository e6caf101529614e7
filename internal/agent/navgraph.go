package agent

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// NavGraph records every page the agent has visited, keyed by URL, and
// the order in which navigation happened. It feeds spatial context
// ("where am I, how did I get here") into the decision prompt.
type NavGraph struct {
	nodes      map[string]*schemas.PageNode
	currentURL string
	history    []string
	logger     *zap.Logger
}

func NewNavGraph(logger *zap.Logger) *NavGraph {
	return &NavGraph{
		nodes:  make(map[string]*schemas.PageNode),
		logger: logger.Named("navgraph"),
	}
}

// AddOrUpdatePage registers a visit to url. A revisit increments the
// visit counter and refreshes title/description when provided; the
// parent link is fixed at first sight and never rewritten. parentURL
// may be empty, in which case the page the agent is currently on
// becomes the parent.
func (g *NavGraph) AddOrUpdatePage(url string, pageType schemas.PageType, title, description, parentURL string) {
	if node, ok := g.nodes[url]; ok {
		node.VisitedCount++
		if title != "" {
			node.Title = title
		}
		if description != "" {
			node.Description = description
		}
	} else {
		parent := parentURL
		if parent == "" {
			parent = g.currentURL
		}
		g.nodes[url] = &schemas.PageNode{
			URL:          url,
			Type:         pageType,
			Title:        title,
			Description:  description,
			VisitedCount: 1,
			ParentURL:    parent,
		}
	}
	g.currentURL = url
	g.history = append(g.history, url)
}

// MarkNavigation logs a traversal edge. The graph itself is updated by
// AddOrUpdatePage; this exists for the audit trail.
func (g *NavGraph) MarkNavigation(fromURL, toURL, action string) {
	g.logger.Debug("Navigation recorded",
		zap.String("from", fromURL),
		zap.String("to", toURL),
		zap.String("action", action))
}

// CurrentPage returns the node for the page the agent is on, or nil
// before the first visit.
func (g *NavGraph) CurrentPage() *schemas.PageNode {
	if g.currentURL == "" {
		return nil
	}
	return g.nodes[g.currentURL]
}

// ParentPage returns the node the current page was first reached from.
func (g *NavGraph) ParentPage() *schemas.PageNode {
	cur := g.CurrentPage()
	if cur == nil || cur.ParentURL == "" {
		return nil
	}
	return g.nodes[cur.ParentURL]
}

// Nodes returns the visited pages keyed by URL.
func (g *NavGraph) Nodes() map[string]*schemas.PageNode {
	return g.nodes
}

// History returns the navigation history, oldest first.
func (g *NavGraph) History() []string {
	return g.history
}

// NavigationContext renders the agent's position for the decision
// prompt: current page identity, visit count, the recent path, and a
// hint about returning to the parent list when the agent is on a
// detail page.
func (g *NavGraph) NavigationContext() string {
	cur := g.CurrentPage()
	if cur == nil {
		return "**Navigation context**: no pages visited yet."
	}

	var b strings.Builder
	b.WriteString("**Navigation context**:\n")
	title := cur.Title
	if title == "" {
		title = cur.URL
	}
	fmt.Fprintf(&b, "- Current page: [%s] %s\n", cur.Type, title)
	fmt.Fprintf(&b, "- Visits to this page: %d\n", cur.VisitedCount)

	if n := len(g.history); n > 1 {
		start := n - 5
		if start < 0 {
			start = 0
		}
		var path []string
		for _, url := range g.history[start:] {
			if node, ok := g.nodes[url]; ok {
				path = append(path, string(node.Type))
			}
		}
		fmt.Fprintf(&b, "- Recent path: %s\n", strings.Join(path, " -> "))
	}

	if cur.Type == schemas.PageDetail {
		if parent := g.ParentPage(); parent != nil && parent.Type == schemas.PageList {
			parentTitle := parent.Title
			if parentTitle == "" {
				parentTitle = parent.URL
			}
			fmt.Fprintf(&b, "- Hint: this is a detail page. Use BACK to return to the list page (%s) for more items.\n", parentTitle)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// ClassifyURL guesses a page type from URL keywords. It is a coarse
// heuristic used when the model has not labelled the page itself.
func ClassifyURL(url string) schemas.PageType {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "list") || strings.Contains(lower, "search") || strings.Contains(lower, "disclosure"):
		return schemas.PageList
	case strings.Contains(lower, "detail") || strings.Contains(lower, "article") || strings.Contains(lower, "notice"):
		return schemas.PageDetail
	default:
		return schemas.PageOther
	}
}
