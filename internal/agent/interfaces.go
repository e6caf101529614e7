// Package agent implements the objective-driven browsing loop: it
// decomposes an objective into checkpoints, asks a multimodal model to
// choose the next action from an annotated screenshot, executes the
// action through a browser driver, and tracks progress on a navigation
// graph until the objective is met or the step budget runs out.
package agent

import (
	"context"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// Driver abstracts the browser session the agent steers. It is
// implemented by browser.Session; tests substitute a mock.
type Driver interface {
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the URL of the active tab.
	CurrentURL() string
	// Title returns the title of the active tab.
	Title() string
	// Elements returns the interactive elements of the current page,
	// served from the snapshot cache unless forceRefresh is set or the
	// page content changed.
	Elements(ctx context.Context, forceRefresh bool) ([]schemas.ElementRecord, error)
	// AnnotatedScreenshot captures the viewport and draws numbered
	// boxes for the given elements.
	AnnotatedScreenshot(ctx context.Context, elements []schemas.ElementRecord) ([]byte, error)
	// Execute performs a single decided action against the page.
	Execute(ctx context.Context, decision schemas.Decision, elements []schemas.ElementRecord) error
	// OpenDetail opens the target of a list-page element in a
	// short-lived tab and returns its extracted content.
	OpenDetail(ctx context.Context, el schemas.ElementRecord) (schemas.BatchItemData, error)
	// PageExcerpt returns the leading visible text of the page.
	PageExcerpt(ctx context.Context, limit int) (string, error)
	// InvalidateSnapshot drops the cached element snapshot for the
	// current page.
	InvalidateSnapshot()
	// DownloadsListing renders the downloaded files as prompt text.
	DownloadsListing() string
	// DownloadedFiles returns the paths of completed downloads.
	DownloadedFiles() []string
}
