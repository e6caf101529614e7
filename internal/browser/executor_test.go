package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
	"github.com/deepsurf-ai/deepsurf/internal/config"
)

func testSession(t *testing.T) *Session {
	t.Helper()
	return &Session{
		cfg:    config.NewDefaultConfig(),
		logger: zaptest.NewLogger(t),
	}
}

func TestExecuteMissingElementID(t *testing.T) {
	s := testSession(t)
	elements := testElements()

	decisions := []schemas.Decision{
		{Action: schemas.ActionClick, ElementID: 7},
		{Action: schemas.ActionType, ElementID: 7, Text: "query"},
		{Action: schemas.ActionScroll, ElementID: 7, ScrollAmount: 300},
	}
	for _, decision := range decisions {
		err := s.Execute(context.Background(), decision, elements)
		require.Error(t, err, "action %s", decision.Action)
		assert.ErrorIs(t, err, ErrElementNotFound, "action %s", decision.Action)
		assert.Contains(t, err.Error(), "element 7")
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	s := testSession(t)

	err := s.Execute(context.Background(), schemas.Decision{Action: "DANCE"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
	assert.False(t, errors.Is(err, ErrElementNotFound))
}

func TestExecuteCancelledContext(t *testing.T) {
	s := testSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Execute(ctx, schemas.Decision{Action: schemas.ActionClick, ElementID: 1}, testElements())
	assert.ErrorIs(t, err, context.Canceled)
}
