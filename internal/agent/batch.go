package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
	"github.com/deepsurf-ai/deepsurf/internal/config"
)

// BatchRunner opens a set of list-page items sequentially and collects
// their content. A circuit breaker aborts the run when the failure
// rate climbs past the configured threshold, so a broken list page
// does not burn the whole step budget.
type BatchRunner struct {
	driver  Driver
	cfg     config.BatchConfig
	logger  *zap.Logger
	limiter *rate.Limiter
}

func NewBatchRunner(driver Driver, cfg config.BatchConfig, logger *zap.Logger) *BatchRunner {
	itemDelay := cfg.ItemDelay
	if itemDelay <= 0 {
		itemDelay = 500 * time.Millisecond
	}
	return &BatchRunner{
		driver:  driver,
		cfg:     cfg,
		logger:  logger.Named("batch"),
		limiter: rate.NewLimiter(rate.Every(itemDelay), 1),
	}
}

// Run visits each element in order. The failure rate is evaluated only
// after a failed item; once it exceeds the threshold the remaining
// targets are skipped and contribute no results.
func (r *BatchRunner) Run(ctx context.Context, elementIDs []int, description string, elements []schemas.ElementRecord) ([]*schemas.BatchResult, error) {
	if len(elementIDs) == 0 {
		return nil, fmt.Errorf("batch execution requires element ids")
	}

	r.logger.Info("Starting batch execution",
		zap.String("description", description),
		zap.Ints("element_ids", elementIDs))

	byID := make(map[int]schemas.ElementRecord, len(elements))
	for _, el := range elements {
		byID[el.ID] = el
	}

	var results []*schemas.BatchResult
	failures := 0

	for idx, elementID := range elementIDs {
		if err := r.limiter.Wait(ctx); err != nil {
			return results, fmt.Errorf("batch execution cancelled: %w", err)
		}

		result := &schemas.BatchResult{Index: idx + 1, ElementID: elementID}

		el, ok := byID[elementID]
		if !ok {
			result.Status = schemas.BatchFailed
			result.Error = fmt.Sprintf("element %d not found on the page", elementID)
		} else if data, err := r.driver.OpenDetail(ctx, el); err != nil {
			result.Status = schemas.BatchFailed
			result.Error = err.Error()
		} else {
			result.Status = schemas.BatchSuccess
			result.Data = data
		}
		results = append(results, result)

		if result.Status == schemas.BatchFailed {
			failures++
			failureRate := float64(failures) / float64(len(results))
			r.logger.Warn("Batch item failed",
				zap.Int("index", result.Index),
				zap.Int("element_id", elementID),
				zap.String("error", result.Error),
				zap.Float64("failure_rate", failureRate))
			if failureRate > r.cfg.FailureRateThreshold {
				r.logger.Error("Batch failure rate exceeded threshold, aborting",
					zap.Float64("failure_rate", failureRate),
					zap.Float64("threshold", r.cfg.FailureRateThreshold),
					zap.Int("skipped", len(elementIDs)-idx-1))
				return results, nil
			}
		}
	}

	successes := len(results) - failures
	r.logger.Info("Batch execution finished",
		zap.Int("succeeded", successes),
		zap.Int("total", len(results)))
	return results, nil
}

// FormatBatchResults renders batch output as prompt text so the model
// can synthesize an answer from the collected items.
func FormatBatchResults(results []*schemas.BatchResult) string {
	successes := 0
	for _, r := range results {
		if r.Status == schemas.BatchSuccess {
			successes++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Batch execution: %d/%d succeeded\n\n", successes, len(results))

	for _, r := range results {
		if r.Status == schemas.BatchSuccess {
			fmt.Fprintf(&b, "--- Item %d (element #%d) ---\n", r.Index, r.ElementID)
			fmt.Fprintf(&b, "Title: %s\n", r.Data.Title)
			content := r.Data.Content
			if len(content) > 300 {
				content = content[:300] + "..."
			}
			fmt.Fprintf(&b, "Content: %s\n", content)
			if len(r.Data.PDFURLs) > 0 {
				urls := r.Data.PDFURLs
				if len(urls) > 3 {
					urls = urls[:3]
				}
				fmt.Fprintf(&b, "PDF links: %s\n", strings.Join(urls, ", "))
			}
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "--- Item %d (failed) ---\nError: %s\n\n", r.Index, r.Error)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
