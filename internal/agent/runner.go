package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
	"github.com/deepsurf-ai/deepsurf/internal/config"
)

// Runner drives one browsing task end to end: decompose the objective,
// then loop extract -> screenshot -> decide -> act until the model
// declares completion or the step budget runs out.
type Runner struct {
	driver     Driver
	llm        schemas.LLMClient
	cfg        *config.Config
	decomposer *Decomposer
	verifier   *Verifier
	reporter   *Reporter
	logger     *zap.Logger
}

func NewRunner(driver Driver, llm schemas.LLMClient, cfg *config.Config, logger *zap.Logger) *Runner {
	return &Runner{
		driver:     driver,
		llm:        llm,
		cfg:        cfg,
		decomposer: NewDecomposer(llm, logger),
		verifier:   NewVerifier(llm, logger),
		reporter:   NewReporter(cfg.Output.ReportsDir, logger),
		logger:     logger.Named("runner"),
	}
}

// Run executes a single task against the driver's browser session.
func (r *Runner) Run(ctx context.Context, objective, targetURL string) *schemas.TaskResult {
	taskID := uuid.NewString()[:8]
	log := r.logger.With(zap.String("task_id", taskID))
	log.Info("Starting task", zap.String("objective", objective), zap.String("url", targetURL))

	conversation := NewConversation(r.llm, r.cfg.Agent.MaxHistoryMessages, r.cfg.Agent.KeepRecentMessages, log)
	actions := NewRecentActionLog(r.cfg.Agent.RecentActionWindow)
	oracle := NewOracle(r.llm, conversation, actions, log)
	graph := NewNavGraph(log)
	batch := NewBatchRunner(r.driver, r.cfg.Batch, log)
	checkpoints := NewCheckpointManager(objective, r.decomposer.Decompose(ctx, objective), log)
	log.Info("Objective decomposed", zap.Int("checkpoints", len(checkpoints.Checkpoints())))

	if err := r.driver.Navigate(ctx, targetURL); err != nil {
		return &schemas.TaskResult{
			Success: false,
			Error:   fmt.Sprintf("failed to open target URL: %v", err),
		}
	}
	graph.AddOrUpdatePage(r.driver.CurrentURL(), schemas.PageEntry, "Start page", "Page where the task began", "")

	var steps []schemas.StepRecord

	for step := 1; step <= r.cfg.Agent.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return r.failedResult(taskID, objective, conversation, checkpoints, graph, steps, fmt.Sprintf("task cancelled: %v", err))
		}

		currentURL := r.driver.CurrentURL()
		log.Info("Executing step", zap.Int("step", step), zap.String("url", currentURL))

		elements, err := r.driver.Elements(ctx, false)
		if err != nil {
			log.Warn("Element extraction failed, continuing with an empty set", zap.Error(err))
			elements = nil
		}

		screenshot, err := r.driver.AnnotatedScreenshot(ctx, elements)
		if err != nil {
			log.Warn("Screenshot failed, deciding without an image", zap.Error(err))
			screenshot = nil
		}

		decision := oracle.Decide(ctx, &StepContext{
			Objective:        objective,
			Step:             step,
			MaxSteps:         r.cfg.Agent.MaxSteps,
			CurrentURL:       currentURL,
			ElementCount:     len(elements),
			ProgressSummary:  checkpoints.ProgressSummary(),
			NavContext:       graph.NavigationContext(),
			DownloadsListing: r.driver.DownloadsListing(),
			DownloadCount:    len(r.driver.DownloadedFiles()),
		}, screenshot)

		record := schemas.StepRecord{
			Step:      step,
			URL:       currentURL,
			Action:    decision.Action,
			Reasoning: decision.Reasoning,
			ElementID: decision.ElementID,
		}
		log.Info("Decision made",
			zap.String("action", string(decision.Action)),
			zap.String("reasoning", truncate(decision.Reasoning, 100)))

		if decision.Action == schemas.ActionTaskComplete {
			steps = append(steps, record)
			return r.completedResult(taskID, objective, conversation, checkpoints, graph, decision, currentURL, steps)
		}

		if decision.Action == schemas.ActionBatchExecute {
			r.runBatch(ctx, batch, conversation, decision, elements, &record)
		} else if decision.Action == schemas.ActionCheckDownloads {
			conversation.Append(Message{
				Role:    RoleUser,
				Content: fmt.Sprintf("Current downloads:\n%s", r.driver.DownloadsListing()),
			})
		} else if err := r.driver.Execute(ctx, *decision, elements); err != nil {
			log.Error("Action failed", zap.String("action", string(decision.Action)), zap.Error(err))
			record.Error = err.Error()
			conversation.Append(Message{Role: RoleUser, Content: fmt.Sprintf("Action failed: %v", err)})
		} else {
			r.recordOutcome(graph, conversation, currentURL, string(decision.Action))
		}
		steps = append(steps, record)

		r.verifyCheckpoint(ctx, checkpoints)
	}

	log.Warn("Step budget exhausted", zap.Int("max_steps", r.cfg.Agent.MaxSteps))
	return r.failedResult(taskID, objective, conversation, checkpoints, graph, steps,
		fmt.Sprintf("reached the step limit of %d without completing the objective", r.cfg.Agent.MaxSteps))
}

func (r *Runner) runBatch(ctx context.Context, batch *BatchRunner, conversation *Conversation, decision *schemas.Decision, elements []schemas.ElementRecord, record *schemas.StepRecord) {
	results, err := batch.Run(ctx, decision.BatchElementIDs, decision.BatchDescription, elements)
	if err != nil {
		record.Error = err.Error()
		conversation.Append(Message{Role: RoleUser, Content: fmt.Sprintf("Batch execution failed: %v", err)})
		return
	}
	summary := FormatBatchResults(results)
	conversation.Append(Message{
		Role:    RoleUser,
		Content: fmt.Sprintf("Batch execution complete.\n\n%s\n\nUse this content to complete the task.", summary),
	})
}

// recordOutcome updates the navigation graph and tells the model what
// its action did. The graph only changes when the URL did.
func (r *Runner) recordOutcome(graph *NavGraph, conversation *Conversation, previousURL, action string) {
	newURL := r.driver.CurrentURL()
	if newURL == previousURL {
		conversation.Append(Message{Role: RoleUser, Content: "Action executed; the page did not navigate."})
		return
	}

	graph.AddOrUpdatePage(newURL, ClassifyURL(newURL), r.driver.Title(),
		fmt.Sprintf("Reached from %s", truncate(previousURL, 40)), previousURL)
	graph.MarkNavigation(previousURL, newURL, action)
	conversation.Append(Message{Role: RoleUser, Content: fmt.Sprintf("Action executed; the page navigated to: %s", newURL)})
}

func (r *Runner) verifyCheckpoint(ctx context.Context, checkpoints *CheckpointManager) {
	current := checkpoints.Current()
	if current == nil {
		return
	}
	checkpoints.MarkCurrentInProgress()

	excerpt, err := r.driver.PageExcerpt(ctx, 800)
	if err != nil {
		excerpt = ""
	}
	verdict := r.verifier.Check(ctx, current, r.driver.CurrentURL(), r.driver.Title(), excerpt, r.driver.DownloadsListing())
	if verdict.Completed {
		checkpoints.MarkCurrentComplete(verdict.Reason)
	}
}

func (r *Runner) completedResult(taskID, objective string, conversation *Conversation, checkpoints *CheckpointManager, graph *NavGraph, decision *schemas.Decision, sourceURL string, steps []schemas.StepRecord) *schemas.TaskResult {
	result := &schemas.TaskResult{
		Success:         true,
		Summary:         decision.Summary,
		SourceURL:       sourceURL,
		Citations:       decision.Citations,
		Steps:           steps,
		DownloadedFiles: r.driver.DownloadedFiles(),
	}
	result.DownloadCount = len(result.DownloadedFiles)

	if path, err := r.reporter.WriteCheckpointReport(taskID, objective, checkpoints.Checkpoints()); err != nil {
		r.logger.Warn("Failed to write checkpoint report", zap.Error(err))
	} else {
		result.ReportPath = path
	}
	if path, err := r.reporter.WriteGraphReport(taskID, graph); err != nil {
		r.logger.Warn("Failed to write graph report", zap.Error(err))
	} else {
		result.GraphReportPath = path
	}
	if path, err := r.reporter.WriteConversationHistory(taskID, objective, conversation); err != nil {
		r.logger.Warn("Failed to write conversation history", zap.Error(err))
	} else {
		result.HistoryPath = path
	}

	r.logger.Info("Task completed",
		zap.String("task_id", taskID),
		zap.Int("steps", len(steps)),
		zap.Int("downloads", result.DownloadCount))
	return result
}

// failedResult still exports every collected artifact: partial steps,
// the checkpoint report, the navigation graph and the conversation.
func (r *Runner) failedResult(taskID, objective string, conversation *Conversation, checkpoints *CheckpointManager, graph *NavGraph, steps []schemas.StepRecord, reason string) *schemas.TaskResult {
	result := &schemas.TaskResult{
		Success:         false,
		Error:           reason,
		Steps:           steps,
		DownloadedFiles: r.driver.DownloadedFiles(),
	}
	result.DownloadCount = len(result.DownloadedFiles)

	if path, err := r.reporter.WriteCheckpointReport(taskID, objective, checkpoints.Checkpoints()); err != nil {
		r.logger.Warn("Failed to write checkpoint report", zap.Error(err))
	} else {
		result.ReportPath = path
	}
	if path, err := r.reporter.WriteGraphReport(taskID, graph); err != nil {
		r.logger.Warn("Failed to write graph report", zap.Error(err))
	} else {
		result.GraphReportPath = path
	}
	if path, err := r.reporter.WriteConversationHistory(taskID, objective, conversation); err != nil {
		r.logger.Warn("Failed to write conversation history", zap.Error(err))
	} else {
		result.HistoryPath = path
	}
	return result
}
