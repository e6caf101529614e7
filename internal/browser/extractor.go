package browser

import (
	"fmt"
	"hash/fnv"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// markerAttribute tags every extracted element in the live DOM so that a
// numeric element ID maps back to exactly one node, regardless of how fragile
// its derived CSS selector is.
const markerAttribute = "data-browser-agent-id"

// extractionScript walks the DOM for interactive elements. Each hit gets a
// fresh sequential ID and a marker attribute; IDs are therefore only valid
// for the extraction pass that produced them.
const extractionScript = `
() => {
    const elements = [];
    let id = 1;

    const interactiveSelectors = [
        'input:not([type="hidden"])',
        'textarea',
        'button',
        'a',
        'select',
        '[role="button"]',
        '[role="link"]',
        '[role="textbox"]',
        '[onclick]',
        '[ng-click]',
        '[data-click]',
        '[data-link]',
        '[contenteditable="true"]',
        'div[onclick]',
        'span[onclick]',
        'li[onclick]',
        'td[onclick]',
        'tr[onclick]'
    ];

    let allElements = Array.from(document.querySelectorAll(
        interactiveSelectors.join(',')
    ));

    // Elements styled as clickable but without interactive markup.
    const allDivSpans = document.querySelectorAll('div, span, td, tr, li, p');
    allDivSpans.forEach(el => {
        const style = window.getComputedStyle(el);
        if (style.cursor === 'pointer' && !allElements.includes(el)) {
            allElements.push(el);
        }
    });

    allElements.forEach(el => {
        const rect = el.getBoundingClientRect();
        const style = window.getComputedStyle(el);

        if (style.display === 'none') return;
        if (style.visibility === 'hidden') return;
        if (parseFloat(style.opacity) < 0.1) return;

        // Zero-size links inside table cells can still be real targets as
        // long as they carry text.
        const isLink = el.tagName === 'A';
        const hasText = el.innerText && el.innerText.trim().length > 0;
        if (rect.width === 0 || rect.height === 0) {
            if (!isLink || !hasText) return;
        }

        // Keep elements slightly above the viewport and well below it, so
        // long tables and lists survive the filter.
        if (rect.top < -500 || rect.top > window.innerHeight + 2000) return;

        // Derive a CSS selector, most stable source first.
        let selector = '';
        if (el.id) {
            selector = '#' + el.id;
        } else if (el.name) {
            selector = el.tagName.toLowerCase() + '[name="' + el.name + '"]';
        } else if (el.dataset && Object.keys(el.dataset).length > 0) {
            const key = Object.keys(el.dataset)[0];
            const value = el.dataset[key];
            selector = '[data-' + key + '="' + value + '"]';
        } else if (el.className && typeof el.className === 'string') {
            const classes = el.className.trim().split(/\s+/)
                .filter(c => c.length > 0 && c.length < 30)
                .slice(0, 2);
            if (classes.length > 0) {
                selector = el.tagName.toLowerCase() + '.' + classes.join('.');
            }
        }
        if (!selector) {
            const parent = el.parentElement;
            if (parent) {
                const siblings = Array.from(parent.children)
                    .filter(e => e.tagName === el.tagName);
                const index = siblings.indexOf(el) + 1;
                selector = el.tagName.toLowerCase() + ':nth-of-type(' + index + ')';
            } else {
                selector = el.tagName.toLowerCase();
            }
        }

        let text = '';
        if (el.innerText && el.innerText.trim()) {
            let rawText = el.innerText.trim().replace(/\s+/g, ' ');
            const maxLength = (el.tagName === 'A' || el.tagName === 'H1' || el.tagName === 'H2' || el.tagName === 'H3') ? 100 : 50;
            text = rawText.substring(0, maxLength);
        } else if (el.textContent && el.textContent.trim()) {
            let rawText = el.textContent.trim().replace(/\s+/g, ' ');
            text = rawText.substring(0, 50);
        } else if (el.placeholder) {
            text = '[placeholder: ' + el.placeholder.substring(0, 50) + ']';
        } else if (el.getAttribute('aria-label')) {
            text = '[aria: ' + el.getAttribute('aria-label').substring(0, 50) + ']';
        } else if (el.value) {
            text = '[value: ' + el.value.substring(0, 30) + ']';
        } else if (el.alt) {
            text = '[alt: ' + el.alt.substring(0, 50) + ']';
        } else if (el.title) {
            text = '[title: ' + el.title.substring(0, 50) + ']';
        }

        // Textless elements are noise unless they accept input.
        if (!text && el.tagName !== 'INPUT' && el.tagName !== 'TEXTAREA' && el.tagName !== 'SELECT') {
            return;
        }

        let isScrollable = false;
        const overflowY = style.overflowY;
        const overflowX = style.overflowX;
        if ((overflowY === 'scroll' || overflowY === 'auto' ||
             overflowX === 'scroll' || overflowX === 'auto') &&
            (el.scrollHeight > el.clientHeight || el.scrollWidth > el.clientWidth)) {
            isScrollable = true;
        }

        const uniqueId = 'ba-' + id;
        el.setAttribute('data-browser-agent-id', uniqueId);

        // Zero-size links borrow their parent's box for annotation.
        let finalRect = rect;
        if ((rect.width === 0 || rect.height === 0) && isLink && el.parentElement) {
            finalRect = el.parentElement.getBoundingClientRect();
        }

        elements.push({
            id: id++,
            type: el.tagName.toLowerCase(),
            role: el.getAttribute('role') || '',
            text: text,
            selector: selector,
            uniqueSelector: '[data-browser-agent-id="' + uniqueId + '"]',
            isScrollable: isScrollable,
            bbox: {
                x: Math.round(finalRect.x),
                y: Math.round(finalRect.y),
                width: Math.round(finalRect.width),
                height: Math.round(finalRect.height)
            }
        });
    });

    // Iframes and scroll containers are navigable even when not interactive.
    const scrollableContainers = document.querySelectorAll('iframe, [style*="overflow"]');
    scrollableContainers.forEach(el => {
        if (el.hasAttribute('data-browser-agent-id')) return;

        const rect = el.getBoundingClientRect();
        if (rect.width === 0 || rect.height === 0) return;
        if (rect.top < -500 || rect.top > window.innerHeight + 2000) return;

        const style = window.getComputedStyle(el);
        if (style.display === 'none' || style.visibility === 'hidden') return;

        const overflowY = style.overflowY;
        const overflowX = style.overflowX;
        const isScrollable = (overflowY === 'scroll' || overflowY === 'auto' ||
                             overflowX === 'scroll' || overflowX === 'auto') &&
                            (el.scrollHeight > el.clientHeight || el.scrollWidth > el.clientWidth);

        const isIframe = el.tagName.toLowerCase() === 'iframe';
        if (!isScrollable && !isIframe) return;

        const uniqueId = 'ba-' + id;
        el.setAttribute('data-browser-agent-id', uniqueId);

        let text = '[scrollable container]';
        if (isIframe) {
            text = '[iframe]';
            const title = el.getAttribute('title');
            if (title) text = '[iframe: ' + title.substring(0, 30) + ']';
        }

        elements.push({
            id: id++,
            type: el.tagName.toLowerCase(),
            role: '',
            text: text,
            selector: el.id ? '#' + el.id : el.tagName.toLowerCase(),
            uniqueSelector: '[data-browser-agent-id="' + uniqueId + '"]',
            isScrollable: true,
            bbox: {
                x: Math.round(rect.x),
                y: Math.round(rect.y),
                width: Math.round(rect.width),
                height: Math.round(rect.height)
            }
        });
    });

    return elements;
}
`

const fingerprintScript = `() => document.body.innerHTML.substring(0, 2000)`

// Extractor pulls interactive elements and content fingerprints out of a
// live page.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("extractor")}
}

// Extract runs the extraction script and returns the discovered elements.
func (e *Extractor) Extract(page playwright.Page) ([]schemas.ElementRecord, error) {
	raw, err := page.Evaluate(extractionScript)
	if err != nil {
		return nil, fmt.Errorf("element extraction script failed: %w", err)
	}

	// The evaluate result comes back as generic maps; round-trip through
	// JSON to land on typed records.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction result: %w", err)
	}
	var elements []schemas.ElementRecord
	if err := json.Unmarshal(encoded, &elements); err != nil {
		return nil, fmt.Errorf("failed to decode extraction result: %w", err)
	}

	e.logger.Info("Extracted interactive elements.", zap.Int("count", len(elements)))
	return elements, nil
}

// Fingerprint hashes a bounded slice of the body HTML. The bound keeps the
// hash cheap while still catching meaningful content changes.
func (e *Extractor) Fingerprint(page playwright.Page) (string, error) {
	raw, err := page.Evaluate(fingerprintScript)
	if err != nil {
		return "", fmt.Errorf("fingerprint script failed: %w", err)
	}
	content, _ := raw.(string)
	return HashContent(content), nil
}

// HashContent computes the content fingerprint for a bounded HTML slice.
func HashContent(content string) string {
	h := fnv.New64a()
	h.Write([]byte(content))
	return fmt.Sprintf("%016x", h.Sum64())
}
