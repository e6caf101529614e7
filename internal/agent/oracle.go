package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// Oracle asks the powerful multimodal tier to choose the next action
// from the annotated screenshot and the accumulated conversation.
type Oracle struct {
	llm          schemas.LLMClient
	conversation *Conversation
	actions      *RecentActionLog
	logger       *zap.Logger
}

func NewOracle(llm schemas.LLMClient, conversation *Conversation, actions *RecentActionLog, logger *zap.Logger) *Oracle {
	return &Oracle{
		llm:          llm,
		conversation: conversation,
		actions:      actions,
		logger:       logger.Named("oracle"),
	}
}

// StepContext carries the dynamic state rendered into one decision
// prompt.
type StepContext struct {
	Objective        string
	Step             int
	MaxSteps         int
	CurrentURL       string
	ElementCount     int
	ProgressSummary  string
	NavContext       string
	DownloadsListing string
	DownloadCount    int
}

// Decide sends the annotated screenshot and step context to the model
// and parses its decision. Model or parse failures degrade to a
// TASK_COMPLETE decision carrying the failure, matching the loop's
// expectation that every step yields a decision.
func (o *Oracle) Decide(ctx context.Context, sc *StepContext, screenshot []byte) *schemas.Decision {
	o.conversation.CompressIfNeeded(ctx)

	stepInfo := o.buildStepInfo(sc)
	userPrompt := o.buildUserPrompt(stepInfo)

	req := schemas.GenerationRequest{
		SystemPrompt: staticSystemPrompt,
		UserPrompt:   userPrompt,
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			ForceJSONFormat: true,
		},
	}
	// A failed screenshot degrades to a text-only decision; a nil image
	// entry would be rejected by the model API.
	if len(screenshot) > 0 {
		req.Images = [][]byte{screenshot}
	}

	response, err := o.llm.Generate(ctx, req)
	if err != nil {
		o.logger.Error("Decision call failed", zap.Error(err))
		return failureDecision(fmt.Sprintf("model call failed: %v", err))
	}

	var decision schemas.Decision
	if err := decodeJSONResponse(response, &decision); err != nil {
		o.logger.Error("Failed to parse decision", zap.Error(err), zap.String("response", truncate(response, 200)))
		return failureDecision(fmt.Sprintf("decision unparseable: %v", err))
	}
	if decision.Action == "" {
		o.logger.Error("Decision missing action field", zap.String("response", truncate(response, 200)))
		return failureDecision("decision missing action field")
	}
	decision.Text = sanitizeText(decision.Text)

	o.recordTurn(stepInfo, &decision, len(screenshot) > 0)

	if decision.Action != schemas.ActionTaskComplete {
		if o.actions.IsRepeated(string(decision.Action), decision.ElementID, decision.Text) {
			o.logger.Warn("Model repeated a recent action",
				zap.String("action", string(decision.Action)),
				zap.Int("element_id", decision.ElementID))
		}
		o.actions.Record(string(decision.Action), decision.ElementID, decision.Text)
	}

	return &decision
}

func (o *Oracle) buildStepInfo(sc *StepContext) string {
	var b strings.Builder

	// The objective is spelled out once; later steps carry only the
	// dynamic state.
	if sc.Step == 1 {
		fmt.Fprintf(&b, "**Objective**: %s\n\n", sc.Objective)
	}

	fmt.Fprintf(&b, "%s\n\n%s\n\n%s\n\n", sc.ProgressSummary, sc.NavContext, sc.DownloadsListing)
	fmt.Fprintf(&b, "**Current page URL**: %s\n", sc.CurrentURL)
	fmt.Fprintf(&b, "**Step**: %d/%d\n", sc.Step, sc.MaxSteps)
	fmt.Fprintf(&b, "**Interactive elements**: %d", sc.ElementCount)

	if warning := o.actions.RepetitionWarning(); warning != "" {
		b.WriteString(warning)
	}
	if sc.DownloadCount > 0 {
		fmt.Fprintf(&b, "\n\n**Note**: %d file(s) have downloaded successfully. If the objective is to download files, check the downloads listing above before continuing.", sc.DownloadCount)
	}

	b.WriteString("\n\nAnalyze the annotated screenshot (numbered red boxes mark the interactive elements) and decide the next action. Complete the current checkpoint before moving to the next one.")
	return b.String()
}

func (o *Oracle) buildUserPrompt(stepInfo string) string {
	var b strings.Builder

	if summary := o.conversation.HistorySummary(); summary != "" {
		fmt.Fprintf(&b, "**Summary of earlier steps**:\n%s\n\n", summary)
	}

	for _, msg := range o.conversation.Messages() {
		fmt.Fprintf(&b, "[%s] %s\n\n", msg.Role, msg.Content)
	}

	b.WriteString(stepInfo)
	return b.String()
}

func (o *Oracle) recordTurn(stepInfo string, decision *schemas.Decision, hadImage bool) {
	content := stepInfo
	if hadImage {
		content += "\n[screenshot omitted]"
	}
	o.conversation.Append(Message{
		Role:     RoleUser,
		Content:  content,
		HadImage: hadImage,
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Decision: %s\nReasoning: %s", decision.Action, decision.Reasoning)
	if decision.ElementID != 0 {
		fmt.Fprintf(&b, "\nElement ID: %d", decision.ElementID)
	}
	if decision.Text != "" {
		fmt.Fprintf(&b, "\nText: %s", decision.Text)
	}
	if decision.ScrollAmount != 0 {
		fmt.Fprintf(&b, "\nScroll: %dpx", decision.ScrollAmount)
	}
	o.conversation.Append(Message{Role: RoleAssistant, Content: b.String()})
}

func failureDecision(reason string) *schemas.Decision {
	return &schemas.Decision{
		Action:    schemas.ActionTaskComplete,
		Reasoning: reason,
		Summary:   "The task could not be completed: the reasoning model did not return a usable decision.",
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
