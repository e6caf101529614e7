package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// OpenDetail processes one batch target: it opens the element's destination,
// extracts the page's title, a bounded content excerpt, and up to a handful
// of PDF links, then restores the list page. In new-tab mode the list page
// never changes, so its element IDs stay valid for the whole batch; in
// navigation mode the target is clicked in place and the session navigates
// back afterwards.
func (s *Session) OpenDetail(ctx context.Context, el schemas.ElementRecord) (schemas.BatchItemData, error) {
	if err := ctx.Err(); err != nil {
		return schemas.BatchItemData{}, err
	}

	selector := el.UniqueSelector
	if selector == "" {
		selector = el.Selector
	}

	if !s.cfg.Batch.UseNewTab {
		return s.openDetailInPlace(selector)
	}

	listPage := s.Page()
	href, _ := listPage.Locator(selector).GetAttribute("href")

	var detailPage playwright.Page
	var err error

	if href != "" {
		href = resolveURL(listPage.URL(), href)
		detailPage, err = s.browserCtx.NewPage()
		if err != nil {
			return schemas.BatchItemData{}, fmt.Errorf("failed to open detail tab: %w", err)
		}
		s.attachDownloadListener(detailPage)
		if _, err := detailPage.Goto(href, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateNetworkidle,
			Timeout:   playwright.Float(15000),
		}); err != nil {
			detailPage.Close()
			return schemas.BatchItemData{}, fmt.Errorf("detail navigation to %s failed: %w", href, err)
		}
	} else {
		// No href to follow directly; a modifier click forces the target
		// into a new tab.
		detailPage, err = s.browserCtx.ExpectPage(func() error {
			return listPage.Locator(selector).Click(playwright.LocatorClickOptions{
				Modifiers: []playwright.KeyboardModifier{*playwright.KeyboardModifierMeta},
			})
		})
		if err != nil {
			return schemas.BatchItemData{}, fmt.Errorf("modifier click did not open a tab: %w", err)
		}
		s.attachDownloadListener(detailPage)
		if err := detailPage.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: playwright.Float(15000),
		}); err != nil {
			s.logger.Debug("Detail page did not reach network idle.", zap.Error(err))
		}
	}
	defer detailPage.Close()

	pageURL := href
	if pageURL == "" {
		pageURL = detailPage.URL()
	}
	return s.harvestDetail(detailPage, pageURL)
}

// openDetailInPlace is the navigation-mode unit: click the target on the
// list page itself, harvest the detail content, then go back. The back
// navigation restores the cached list snapshot, so element IDs survive.
func (s *Session) openDetailInPlace(selector string) (schemas.BatchItemData, error) {
	page := s.Page()

	if err := page.Locator(selector).Click(); err != nil {
		return schemas.BatchItemData{}, fmt.Errorf("detail click failed: %w", err)
	}
	s.waitSettled(page)

	data, err := s.harvestDetail(page, page.URL())

	// Return to the list page even when the harvest failed, so the
	// remaining batch items still have their list page.
	if _, backErr := page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(5000),
	}); backErr != nil {
		s.logger.Warn("Back navigation after detail harvest failed.", zap.Error(backErr))
	}

	if err != nil {
		return schemas.BatchItemData{}, err
	}
	return data, nil
}

// harvestDetail reads title, bounded body text and PDF links off an open
// detail page.
func (s *Session) harvestDetail(page playwright.Page, pageURL string) (schemas.BatchItemData, error) {
	title, err := page.Title()
	if err != nil {
		return schemas.BatchItemData{}, fmt.Errorf("failed to read detail title: %w", err)
	}

	content, err := page.Locator("body").TextContent()
	if err != nil {
		return schemas.BatchItemData{}, fmt.Errorf("failed to read detail content: %w", err)
	}
	content = strings.TrimSpace(content)
	if len(content) > s.cfg.Batch.MaxContentLength {
		content = content[:s.cfg.Batch.MaxContentLength]
	}

	return schemas.BatchItemData{
		URL:     pageURL,
		Title:   title,
		Content: content,
		PDFURLs: s.collectPDFLinks(page),
	}, nil
}

func (s *Session) collectPDFLinks(page playwright.Page) []string {
	links, err := page.Locator(`a[href$=".pdf"]`).All()
	if err != nil {
		s.logger.Debug("PDF link scan failed.", zap.Error(err))
		return nil
	}

	var pdfURLs []string
	for _, link := range links {
		if len(pdfURLs) >= s.cfg.Batch.MaxPDFLinks {
			break
		}
		href, err := link.GetAttribute("href")
		if err != nil || href == "" {
			continue
		}
		pdfURLs = append(pdfURLs, resolveURL(page.URL(), href))
	}
	return pdfURLs
}

// resolveURL makes href absolute relative to base. Unparseable inputs come
// back unchanged.
func resolveURL(base, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
