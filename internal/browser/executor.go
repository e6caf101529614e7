package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// ErrElementNotFound reports a decision addressing an element id that is
// not part of the current extraction.
var ErrElementNotFound = errors.New("element not found in current extraction")

// Execute performs one decision against the active page. Element-addressed
// actions retry with exponential backoff; a failed action returns an error
// but leaves the session usable.
func (s *Session) Execute(ctx context.Context, decision schemas.Decision, elements []schemas.ElementRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch decision.Action {
	case schemas.ActionClick:
		return s.executeClick(ctx, decision, elements)
	case schemas.ActionType:
		return s.executeType(ctx, decision, elements)
	case schemas.ActionScroll:
		return s.executeScroll(decision, elements)
	case schemas.ActionBack:
		return s.executeBack()
	case schemas.ActionForward:
		return s.executeForward()
	case schemas.ActionRefresh:
		return s.executeRefresh()
	case schemas.ActionCheckDownloads, schemas.ActionTaskComplete:
		// No browser effect. Downloads are surfaced in the next prompt;
		// completion is handled by the caller.
		return nil
	default:
		return fmt.Errorf("unknown action: %s", decision.Action)
	}
}

func findElement(elements []schemas.ElementRecord, id int) (schemas.ElementRecord, bool) {
	for _, el := range elements {
		if el.ID == id {
			return el, true
		}
	}
	return schemas.ElementRecord{}, false
}

// locate resolves an element record to a Playwright locator. The marker
// attribute selector maps one-to-one to the extracted node; the derived CSS
// selector is the fallback when the marker got wiped by a re-render.
func (s *Session) locate(page playwright.Page, el schemas.ElementRecord) (playwright.Locator, error) {
	selector := el.UniqueSelector
	if selector == "" {
		selector = el.Selector
	}

	locator := page.Locator(selector)
	count, err := locator.Count()
	if err != nil {
		return nil, fmt.Errorf("locator count failed for %q: %w", selector, err)
	}

	switch {
	case count == 0 && el.Selector != "" && el.Selector != selector:
		s.logger.Warn("Marker selector missing, using fallback.", zap.String("fallback", el.Selector))
		return page.Locator(el.Selector).First(), nil
	case count == 0:
		return nil, fmt.Errorf("no element matches %q", selector)
	case count > 1:
		s.logger.Warn("Selector matched multiple elements, using first.", zap.String("selector", selector), zap.Int("count", count))
		return locator.First(), nil
	default:
		return locator, nil
	}
}

func (s *Session) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.Agent.Retry.InitialInterval
	b.MaxInterval = s.cfg.Agent.Retry.MaxInterval
	b.Multiplier = s.cfg.Agent.Retry.Multiplier
	attempts := s.cfg.Agent.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

func (s *Session) executeClick(ctx context.Context, decision schemas.Decision, elements []schemas.ElementRecord) error {
	el, ok := findElement(elements, decision.ElementID)
	if !ok {
		return fmt.Errorf("click target element %d: %w", decision.ElementID, ErrElementNotFound)
	}

	page := s.Page()
	initialPages := len(s.browserCtx.Pages())
	s.logger.Info("Clicking element.", zap.Int("element_id", el.ID), zap.String("text", el.Text))

	operation := func() error {
		locator, err := s.locate(page, el)
		if err != nil {
			return err
		}
		if err := locator.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(5000),
		}); err != nil {
			return fmt.Errorf("element %d not visible: %w", el.ID, err)
		}
		if err := locator.ScrollIntoViewIfNeeded(); err != nil {
			return fmt.Errorf("scroll into view failed: %w", err)
		}
		if err := locator.Click(playwright.LocatorClickOptions{
			Timeout: playwright.Float(float64(s.cfg.Browser.ActionTimeout.Milliseconds())),
		}); err != nil {
			return fmt.Errorf("click failed: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, s.retryPolicy(ctx)); err != nil {
		return err
	}

	s.waitSettled(page)

	// A click may have spawned a new tab; follow it.
	time.Sleep(500 * time.Millisecond)
	pages := s.browserCtx.Pages()
	if len(pages) > initialPages {
		newPage := pages[len(pages)-1]
		s.logger.Info("Click opened a new tab, switching.", zap.String("url", newPage.URL()))
		s.attachDownloadListener(newPage)
		s.waitSettled(newPage)
		s.setPage(newPage)
	}
	return nil
}

func (s *Session) executeType(ctx context.Context, decision schemas.Decision, elements []schemas.ElementRecord) error {
	el, ok := findElement(elements, decision.ElementID)
	if !ok {
		return fmt.Errorf("type target element %d: %w", decision.ElementID, ErrElementNotFound)
	}

	page := s.Page()
	s.logger.Info("Typing into element.", zap.Int("element_id", el.ID), zap.String("text", decision.Text))

	operation := func() error {
		locator, err := s.locate(page, el)
		if err != nil {
			return err
		}
		if err := locator.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(5000),
		}); err != nil {
			return fmt.Errorf("element %d not visible: %w", el.ID, err)
		}
		if err := locator.ScrollIntoViewIfNeeded(); err != nil {
			return fmt.Errorf("scroll into view failed: %w", err)
		}
		// Focus, replace content, then submit. Enter is the common path
		// for search boxes.
		if err := locator.Click(); err != nil {
			return fmt.Errorf("focus click failed: %w", err)
		}
		if err := locator.Fill(decision.Text); err != nil {
			return fmt.Errorf("fill failed: %w", err)
		}
		if err := locator.Press("Enter"); err != nil {
			return fmt.Errorf("enter press failed: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, s.retryPolicy(ctx)); err != nil {
		return err
	}
	s.waitSettled(page)
	return nil
}

func (s *Session) executeScroll(decision schemas.Decision, elements []schemas.ElementRecord) error {
	amount := decision.ScrollAmount
	if amount == 0 {
		amount = 500
	}
	page := s.Page()

	if decision.ElementID != 0 {
		el, ok := findElement(elements, decision.ElementID)
		if !ok {
			return fmt.Errorf("scroll target element %d: %w", decision.ElementID, ErrElementNotFound)
		}
		s.logger.Info("Scrolling element.", zap.Int("element_id", el.ID), zap.Int("amount", amount))
		locator, err := s.locate(page, el)
		if err != nil {
			return err
		}
		if _, err := locator.Evaluate("(element, amount) => element.scrollBy(0, amount)", amount); err != nil {
			return fmt.Errorf("element scroll failed: %w", err)
		}
		return nil
	}

	s.logger.Info("Scrolling page.", zap.Int("amount", amount))
	if _, err := page.Evaluate("amount => window.scrollBy(0, amount)", amount); err != nil {
		return fmt.Errorf("page scroll failed: %w", err)
	}
	return nil
}

// executeBack goes back in history. A tab opened by a click has no history;
// in that case the tab is closed and the session returns to the previous one.
func (s *Session) executeBack() error {
	page := s.Page()
	allPages := s.browserCtx.Pages()

	_, err := page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(10000),
	})
	if err == nil {
		s.waitSettled(page)
		s.logger.Info("Went back.", zap.String("url", page.URL()))
		return nil
	}
	s.logger.Warn("History back failed.", zap.Error(err))

	if len(allPages) > 1 {
		currentIndex := -1
		for i, p := range allPages {
			if p == page {
				currentIndex = i
				break
			}
		}

		if closeErr := page.Close(); closeErr != nil {
			return fmt.Errorf("failed to close child tab: %w", closeErr)
		}

		var previous playwright.Page
		if currentIndex > 0 {
			previous = allPages[currentIndex-1]
		} else if remaining := s.browserCtx.Pages(); len(remaining) > 0 {
			previous = remaining[0]
		}
		if previous == nil {
			return fmt.Errorf("no tab left to return to after closing child tab")
		}

		s.setPage(previous)
		s.logger.Info("Closed child tab, returned to previous tab.", zap.String("url", previous.URL()))
		return nil
	}

	s.logger.Warn("Already at the first page in history.")
	return nil
}

func (s *Session) executeForward() error {
	page := s.Page()
	_, err := page.GoForward(playwright.PageGoForwardOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(10000),
	})
	if err != nil {
		// Already at the newest entry is not fatal.
		s.logger.Warn("History forward failed.", zap.Error(err))
		return nil
	}
	s.waitSettled(page)
	s.logger.Info("Went forward.", zap.String("url", page.URL()))
	return nil
}

func (s *Session) executeRefresh() error {
	page := s.Page()
	_, err := page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(10000),
	})
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	s.waitSettled(page)
	s.logger.Info("Page refreshed.", zap.String("url", page.URL()))
	return nil
}
