package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

const decomposerSystemPrompt = `You are a task planning expert. Decompose a browsing objective into a small number of state-oriented checkpoints.

**Core principles**:
- Each checkpoint describes a STATE to reach ("the announcement list page has been found"), not an action to perform ("click the announcements link"). The executing agent decides which actions reach each state.
- Produce 2-3 checkpoints. Fewer, coarser checkpoints work better than many fine-grained ones.
- Success criteria must be LENIENT and verifiable from observable page state (URL, title, visible content, downloaded files). Do not demand exact counts or exact wording.
- The final checkpoint should correspond to the objective itself being satisfied.

Respond with JSON only, in this exact shape:
{
  "subtasks": [
    {
      "id": 1,
      "description": "state to reach",
      "success_criteria": ["observable condition", "..."]
    }
  ]
}`

// Decomposer turns a free-form objective into ordered checkpoints
// using the fast model tier.
type Decomposer struct {
	llm    schemas.LLMClient
	logger *zap.Logger
}

func NewDecomposer(llm schemas.LLMClient, logger *zap.Logger) *Decomposer {
	return &Decomposer{
		llm:    llm,
		logger: logger.Named("decomposer"),
	}
}

type decompositionPayload struct {
	Subtasks []struct {
		ID              int      `json:"id"`
		Description     string   `json:"description"`
		SuccessCriteria []string `json:"success_criteria"`
	} `json:"subtasks"`
}

// Decompose asks the model to split the objective into checkpoints.
// Any failure degrades to a single checkpoint carrying the whole
// objective so the browsing loop can always start.
func (d *Decomposer) Decompose(ctx context.Context, objective string) []*schemas.Checkpoint {
	req := schemas.GenerationRequest{
		SystemPrompt: decomposerSystemPrompt,
		UserPrompt:   fmt.Sprintf("**Objective**: %s\n\nDecompose this into state-oriented checkpoints.", objective),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
		},
	}

	response, err := d.llm.Generate(ctx, req)
	if err != nil {
		d.logger.Warn("Decomposition call failed, falling back to a single checkpoint", zap.Error(err))
		return fallbackCheckpoints(objective)
	}

	var payload decompositionPayload
	if err := decodeJSONResponse(response, &payload); err != nil {
		d.logger.Warn("Failed to parse decomposition response, falling back to a single checkpoint", zap.Error(err))
		return fallbackCheckpoints(objective)
	}
	if len(payload.Subtasks) == 0 {
		d.logger.Warn("Decomposition produced no checkpoints, falling back to a single checkpoint")
		return fallbackCheckpoints(objective)
	}

	checkpoints := make([]*schemas.Checkpoint, 0, len(payload.Subtasks))
	for i, st := range payload.Subtasks {
		id := st.ID
		if id <= 0 {
			id = i + 1
		}
		checkpoints = append(checkpoints, &schemas.Checkpoint{
			ID:              id,
			Description:     st.Description,
			SuccessCriteria: st.SuccessCriteria,
			Status:          schemas.CheckpointPending,
		})
	}

	d.logger.Info("Objective decomposed", zap.Int("checkpoints", len(checkpoints)))
	return checkpoints
}

func fallbackCheckpoints(objective string) []*schemas.Checkpoint {
	return []*schemas.Checkpoint{
		{
			ID:              1,
			Description:     objective,
			SuccessCriteria: []string{"The objective appears to be satisfied based on the visible page state"},
			Status:          schemas.CheckpointPending,
		},
	}
}
