package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
	"github.com/deepsurf-ai/deepsurf/internal/config"
)

func batchTestConfig() config.BatchConfig {
	return config.BatchConfig{
		FailureRateThreshold: 0.3,
		ItemDelay:            1, // nanosecond pacing keeps tests fast
		MaxContentLength:     1000,
		MaxPDFLinks:          5,
		UseNewTab:            true,
	}
}

func batchTestElements(ids ...int) []schemas.ElementRecord {
	elements := make([]schemas.ElementRecord, 0, len(ids))
	for _, id := range ids {
		elements = append(elements, schemas.ElementRecord{ID: id, Type: "a", Text: "item"})
	}
	return elements
}

func matchElement(id int) interface{} {
	return mock.MatchedBy(func(el schemas.ElementRecord) bool { return el.ID == id })
}

func TestBatchAllSucceed(t *testing.T) {
	driver := new(MockDriver)
	for _, id := range []int{1, 2, 3} {
		driver.On("OpenDetail", mock.Anything, matchElement(id)).
			Return(schemas.BatchItemData{URL: "u", Title: "t", Content: "c"}, nil).Once()
	}

	r := NewBatchRunner(driver, batchTestConfig(), zaptest.NewLogger(t))
	results, err := r.Run(context.Background(), []int{1, 2, 3}, "read items", batchTestElements(1, 2, 3))

	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, schemas.BatchSuccess, res.Status)
	}
	driver.AssertExpectations(t)
}

func TestBatchToleratesFailureUnderThreshold(t *testing.T) {
	driver := new(MockDriver)
	driver.On("OpenDetail", mock.Anything, matchElement(1)).
		Return(schemas.BatchItemData{Title: "a"}, nil).Once()
	driver.On("OpenDetail", mock.Anything, matchElement(2)).
		Return(schemas.BatchItemData{Title: "b"}, nil).Once()
	driver.On("OpenDetail", mock.Anything, matchElement(3)).
		Return(schemas.BatchItemData{Title: "c"}, nil).Once()
	driver.On("OpenDetail", mock.Anything, matchElement(4)).
		Return(schemas.BatchItemData{}, errors.New("timeout")).Once()

	r := NewBatchRunner(driver, batchTestConfig(), zaptest.NewLogger(t))
	results, err := r.Run(context.Background(), []int{1, 2, 3, 4}, "", batchTestElements(1, 2, 3, 4))

	// 1 failure out of 4 is a 0.25 rate, under the 0.3 threshold.
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, schemas.BatchFailed, results[3].Status)
	assert.Contains(t, results[3].Error, "timeout")
}

func TestBatchBreakerAbortsOverThreshold(t *testing.T) {
	driver := new(MockDriver)
	// First item fails immediately: rate is 1/1, over the threshold,
	// so the rest must be skipped entirely.
	driver.On("OpenDetail", mock.Anything, matchElement(1)).
		Return(schemas.BatchItemData{}, errors.New("boom")).Once()

	r := NewBatchRunner(driver, batchTestConfig(), zaptest.NewLogger(t))
	results, err := r.Run(context.Background(), []int{1, 2, 3, 4, 5}, "", batchTestElements(1, 2, 3, 4, 5))

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, schemas.BatchFailed, results[0].Status)
	driver.AssertNumberOfCalls(t, "OpenDetail", 1)
}

func TestBatchBreakerTripsMidRun(t *testing.T) {
	driver := new(MockDriver)
	for _, id := range []int{1, 2, 3} {
		driver.On("OpenDetail", mock.Anything, matchElement(id)).
			Return(schemas.BatchItemData{Title: "ok"}, nil).Once()
	}
	driver.On("OpenDetail", mock.Anything, matchElement(4)).
		Return(schemas.BatchItemData{}, errors.New("fail")).Once()
	driver.On("OpenDetail", mock.Anything, matchElement(5)).
		Return(schemas.BatchItemData{}, errors.New("fail")).Once()

	r := NewBatchRunner(driver, batchTestConfig(), zaptest.NewLogger(t))
	// After item 5 the rate is 2/5 = 0.4 > 0.3: items 6 and 7 are skipped.
	results, err := r.Run(context.Background(), []int{1, 2, 3, 4, 5, 6, 7}, "", batchTestElements(1, 2, 3, 4, 5, 6, 7))

	require.NoError(t, err)
	require.Len(t, results, 5)
	driver.AssertNumberOfCalls(t, "OpenDetail", 5)
}

func TestBatchMissingElementCountsAsFailure(t *testing.T) {
	driver := new(MockDriver)
	driver.On("OpenDetail", mock.Anything, matchElement(1)).
		Return(schemas.BatchItemData{Title: "ok"}, nil).Times(3)

	r := NewBatchRunner(driver, batchTestConfig(), zaptest.NewLogger(t))
	results, err := r.Run(context.Background(), []int{1, 1, 1, 99}, "", batchTestElements(1))

	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, schemas.BatchFailed, results[3].Status)
	assert.Contains(t, results[3].Error, "element 99 not found")
}

func TestBatchRequiresElementIDs(t *testing.T) {
	r := NewBatchRunner(new(MockDriver), batchTestConfig(), zaptest.NewLogger(t))
	_, err := r.Run(context.Background(), nil, "", nil)
	assert.Error(t, err)
}

func TestFormatBatchResults(t *testing.T) {
	results := []*schemas.BatchResult{
		{Index: 1, ElementID: 3, Status: schemas.BatchSuccess, Data: schemas.BatchItemData{
			Title:   "Quarterly report",
			Content: "Revenue grew by 12% in the period.",
			PDFURLs: []string{"https://example.com/q1.pdf"},
		}},
		{Index: 2, ElementID: 4, Status: schemas.BatchFailed, Error: "navigation timeout"},
	}

	text := FormatBatchResults(results)
	assert.Contains(t, text, "1/2 succeeded")
	assert.Contains(t, text, "Item 1 (element #3)")
	assert.Contains(t, text, "Quarterly report")
	assert.Contains(t, text, "https://example.com/q1.pdf")
	assert.Contains(t, text, "Item 2 (failed)")
	assert.Contains(t, text, "navigation timeout")
}
