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
)

func TestDecomposeParsesCheckpoints(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierFast && req.Options.ForceJSONFormat
	})).Return(`{"subtasks": [
		{"id": 1, "description": "The announcement list page has been found", "success_criteria": ["a list of announcements is visible"]},
		{"id": 2, "description": "The latest announcement content has been read", "success_criteria": ["the announcement body is visible"]}
	]}`, nil)

	d := NewDecomposer(llm, zaptest.NewLogger(t))
	checkpoints := d.Decompose(context.Background(), "find the latest announcement")

	require.Len(t, checkpoints, 2)
	assert.Equal(t, 1, checkpoints[0].ID)
	assert.Equal(t, schemas.CheckpointPending, checkpoints[0].Status)
	assert.Equal(t, "The latest announcement content has been read", checkpoints[1].Description)
	llm.AssertExpectations(t)
}

func TestDecomposeFencedResponse(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).
		Return("```json\n{\"subtasks\": [{\"id\": 1, \"description\": \"done\", \"success_criteria\": []}]}\n```", nil)

	d := NewDecomposer(llm, zaptest.NewLogger(t))
	checkpoints := d.Decompose(context.Background(), "objective")
	require.Len(t, checkpoints, 1)
	assert.Equal(t, "done", checkpoints[0].Description)
}

func TestDecomposeAssignsMissingIDs(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"subtasks": [{"description": "a", "success_criteria": []}, {"description": "b", "success_criteria": []}]}`, nil)

	d := NewDecomposer(llm, zaptest.NewLogger(t))
	checkpoints := d.Decompose(context.Background(), "objective")
	require.Len(t, checkpoints, 2)
	assert.Equal(t, 1, checkpoints[0].ID)
	assert.Equal(t, 2, checkpoints[1].ID)
}

func TestDecomposeFallsBackOnLLMError(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))

	d := NewDecomposer(llm, zaptest.NewLogger(t))
	checkpoints := d.Decompose(context.Background(), "download the report")

	require.Len(t, checkpoints, 1)
	assert.Equal(t, "download the report", checkpoints[0].Description)
	assert.Equal(t, schemas.CheckpointPending, checkpoints[0].Status)
	assert.NotEmpty(t, checkpoints[0].SuccessCriteria)
}

func TestDecomposeFallsBackOnGarbage(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).Return("I cannot help with that.", nil)

	d := NewDecomposer(llm, zaptest.NewLogger(t))
	checkpoints := d.Decompose(context.Background(), "objective")
	require.Len(t, checkpoints, 1)
	assert.Equal(t, "objective", checkpoints[0].Description)
}

func TestDecomposeFallsBackOnEmptyList(t *testing.T) {
	llm := new(MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{"subtasks": []}`, nil)

	d := NewDecomposer(llm, zaptest.NewLogger(t))
	checkpoints := d.Decompose(context.Background(), "objective")
	require.Len(t, checkpoints, 1)
}
