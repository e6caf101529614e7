package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// MockLLM is a testify mock for the LLM client.
type MockLLM struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLM)(nil)

func (m *MockLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLM) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockDriver is a testify mock for the browser driver.
type MockDriver struct {
	mock.Mock
}

var _ Driver = (*MockDriver)(nil)

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) CurrentURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDriver) Title() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDriver) Elements(ctx context.Context, forceRefresh bool) ([]schemas.ElementRecord, error) {
	args := m.Called(ctx, forceRefresh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ElementRecord), args.Error(1)
}

func (m *MockDriver) AnnotatedScreenshot(ctx context.Context, elements []schemas.ElementRecord) ([]byte, error) {
	args := m.Called(ctx, elements)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDriver) Execute(ctx context.Context, decision schemas.Decision, elements []schemas.ElementRecord) error {
	args := m.Called(ctx, decision, elements)
	return args.Error(0)
}

func (m *MockDriver) OpenDetail(ctx context.Context, el schemas.ElementRecord) (schemas.BatchItemData, error) {
	args := m.Called(ctx, el)
	return args.Get(0).(schemas.BatchItemData), args.Error(1)
}

func (m *MockDriver) PageExcerpt(ctx context.Context, limit int) (string, error) {
	args := m.Called(ctx, limit)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) InvalidateSnapshot() {
	m.Called()
}

func (m *MockDriver) DownloadsListing() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockDriver) DownloadedFiles() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}
