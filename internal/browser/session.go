package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
	"github.com/deepsurf-ai/deepsurf/internal/config"
)

// Session owns one browser context and tracks the currently active page.
// Clicks can spawn new tabs; the session follows them, so "the page" is
// always the tab the agent is looking at.
type Session struct {
	id         string
	browserCtx playwright.BrowserContext
	cfg        *config.Config
	logger     *zap.Logger

	extractor *Extractor
	cache     *SnapshotCache
	annotator *Annotator

	mu   sync.Mutex
	page playwright.Page

	downloadsMu     sync.Mutex
	downloadedFiles []string
	downloadsDir    string

	onClose  func()
	closedMu sync.Mutex
	isClosed bool
}

// NewSession wraps a browser context with extraction, caching, annotation,
// and download tracking. It opens the context's first page.
func NewSession(browserCtx playwright.BrowserContext, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	sessionLogger := logger.With(zap.String("session_id", sessionID))

	downloadsDir, err := filepath.Abs(cfg.Browser.DownloadsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve downloads dir: %w", err)
	}
	if err := os.MkdirAll(downloadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create downloads dir: %w", err)
	}

	s := &Session{
		id:           sessionID,
		browserCtx:   browserCtx,
		cfg:          cfg,
		logger:       sessionLogger,
		extractor:    NewExtractor(sessionLogger),
		cache:        NewSnapshotCache(cfg.Agent.SnapshotMaxAge, sessionLogger),
		annotator:    NewAnnotator(cfg.Agent.MaxElements, sessionLogger),
		downloadsDir: downloadsDir,
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open initial page: %w", err)
	}
	s.attachDownloadListener(page)
	s.page = page

	return s, nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Page returns the currently active page.
func (s *Session) Page() playwright.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) setPage(page playwright.Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = page
}

// Navigate loads a URL in the active page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	page := s.Page()

	s.logger.Info("Navigating.", zap.String("url", url))
	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.cfg.Browser.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	s.waitSettled(page)
	return nil
}

// waitSettled gives the page a chance to reach network idle. Pages that
// poll continuously never go idle, so failure here is not an error.
func (s *Session) waitSettled(page playwright.Page) {
	err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(s.cfg.Browser.ActionTimeout.Milliseconds())),
	})
	if err != nil {
		s.logger.Debug("Page did not reach network idle.", zap.Error(err))
	}
	// Late-rendering scripts still mutate the DOM after network idle.
	if wait := s.cfg.Browser.PostLoadWait; wait > 0 {
		page.WaitForTimeout(float64(wait.Milliseconds()))
	}
}

// CurrentURL returns the active page's URL.
func (s *Session) CurrentURL() string {
	return s.Page().URL()
}

// Title returns the active page's title, or an empty string on failure.
func (s *Session) Title() string {
	title, err := s.Page().Title()
	if err != nil {
		s.logger.Debug("Failed to read page title.", zap.Error(err))
		return ""
	}
	return title
}

// Elements returns the interactive elements of the active page, served from
// the snapshot cache when the page content has not changed.
func (s *Session) Elements(ctx context.Context, forceRefresh bool) ([]schemas.ElementRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := s.Page()
	url := page.URL()

	fingerprint, err := s.extractor.Fingerprint(page)
	if err != nil {
		return nil, err
	}

	if !forceRefresh {
		if elements, ok := s.cache.Get(url, fingerprint); ok {
			s.logger.Info("Using cached page elements.", zap.Int("count", len(elements)))
			return elements, nil
		}
	}

	elements, err := s.extractor.Extract(page)
	if err != nil {
		return nil, err
	}
	s.cache.Put(url, fingerprint, elements)
	return elements, nil
}

// InvalidateSnapshot drops the cached snapshot for the current URL.
func (s *Session) InvalidateSnapshot() {
	s.cache.Invalidate(s.Page().URL())
}

// AnnotatedScreenshot captures the viewport and overlays element ID badges.
// The elements drawn are the ones from the latest extraction pass, so callers
// should extract first.
func (s *Session) AnnotatedScreenshot(ctx context.Context, elements []schemas.ElementRecord) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page := s.Page()

	shot, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return s.annotator.Annotate(shot, elements), nil
}

// PageExcerpt returns up to limit characters of the page's visible text.
func (s *Session) PageExcerpt(ctx context.Context, limit int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := s.Page().Evaluate("() => document.body.innerText")
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	text, _ := raw.(string)
	if len(text) > limit {
		text = text[:limit]
	}
	return text, nil
}

// attachDownloadListener saves every download into the session downloads
// directory. Each new tab needs its own listener.
func (s *Session) attachDownloadListener(page playwright.Page) {
	page.OnDownload(func(download playwright.Download) {
		filename := download.SuggestedFilename()
		path := filepath.Join(s.downloadsDir, filename)

		s.downloadsMu.Lock()
		for _, existing := range s.downloadedFiles {
			if strings.EqualFold(existing, path) {
				s.downloadsMu.Unlock()
				s.logger.Info("File already downloaded, skipping.", zap.String("file", filename))
				return
			}
		}
		s.downloadsMu.Unlock()

		if err := download.SaveAs(path); err != nil {
			s.logger.Warn("Failed to save download.", zap.String("file", filename), zap.Error(err))
			return
		}

		s.downloadsMu.Lock()
		s.downloadedFiles = append(s.downloadedFiles, path)
		s.downloadsMu.Unlock()
		s.logger.Info("Download saved.", zap.String("file", filename))
	})
}

// DownloadedFiles returns the absolute paths of all files saved so far.
func (s *Session) DownloadedFiles() []string {
	s.downloadsMu.Lock()
	defer s.downloadsMu.Unlock()
	files := make([]string, len(s.downloadedFiles))
	copy(files, s.downloadedFiles)
	return files
}

// DownloadsListing renders the downloaded files as a short human-readable
// listing for inclusion in decision prompts.
func (s *Session) DownloadsListing() string {
	files := s.DownloadedFiles()
	if len(files) == 0 {
		return "No files downloaded yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Downloaded files (%d):\n", len(files))
	for _, f := range files {
		info := ""
		if st, err := os.Stat(f); err == nil {
			info = fmt.Sprintf(" (%.1f KB)", float64(st.Size())/1024.0)
		}
		fmt.Fprintf(&b, "- %s%s\n", filepath.Base(f), info)
	}
	return b.String()
}

// Close terminates the browser context.
func (s *Session) Close() error {
	s.closedMu.Lock()
	if s.isClosed {
		s.closedMu.Unlock()
		return nil
	}
	s.isClosed = true
	s.closedMu.Unlock()

	s.logger.Debug("Closing browser session.")
	err := s.browserCtx.Close()

	if s.onClose != nil {
		s.onClose()
	}
	return err
}
