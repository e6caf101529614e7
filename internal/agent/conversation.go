package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/deepsurf-ai/deepsurf/api/schemas"
)

// staticSystemPrompt is the fixed instruction set sent on every
// decision call. It never changes during a task, so providers that
// cache system prompts only pay for it once.
const staticSystemPrompt = `You are a web browsing agent. On each step you receive an annotated screenshot of the current page: red boxes with numbers mark the interactive elements, and the number is the element_id you act on.

Your job is to choose exactly one action per step that moves the current checkpoint forward.

**Available actions**:

1. CLICK - click an element. Requires element_id.
2. TYPE - type into an input and press Enter. Requires element_id and text.
3. SCROLL - scroll the page, or a scrollable container when element_id is set. scroll_amount is in pixels (default 500, negative scrolls up).
4. BACK - go back to the previous page. If the current tab cannot go back and other tabs are open, the current tab is closed and focus returns to the previous tab.
5. FORWARD - go forward in history.
6. REFRESH - reload the current page. Use when the page looks broken or stale.
7. CHECK_DOWNLOADS - report the files downloaded so far. Use when the objective involves downloads and you need to confirm what has arrived.
8. BATCH_EXECUTE - open several list items in sequence and extract their content in one shot. Requires batch_element_ids (the numbered link elements to open) and batch_description. Use ONLY on a list page where many similar item links are visible and the objective needs content from several of them. Far more efficient than clicking items one by one.
9. TASK_COMPLETE - the objective is satisfied. Requires summary (the answer, in detail) and citations (exact text fragments from pages that support the answer).

**Output format** - respond with JSON only:
{
  "action": "CLICK",
  "reasoning": "why this action moves the current checkpoint forward",
  "element_id": 12,
  "text": "",
  "scroll_amount": 0,
  "summary": "",
  "citations": [],
  "batch_element_ids": [],
  "batch_description": ""
}

Fill only the fields the chosen action needs; leave the rest empty.

**Strategy**:
- Complete the CURRENT checkpoint before moving to the next one.
- If the content you need is not visible, SCROLL before trying anything else.
- Never repeat an action that did not change the page; pick a different element or a different action.
- Prefer BATCH_EXECUTE over repeated CLICK/BACK cycles when several list items must be read.
- When the objective involves downloading, confirm with CHECK_DOWNLOADS before declaring TASK_COMPLETE.
- Declare TASK_COMPLETE as soon as the objective is genuinely satisfied; do not keep browsing for extra confirmation.`

// Role values for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the decision conversation. Screenshots are
// never stored in history; HadImage marks turns that carried one.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	HadImage bool   `json:"had_image,omitempty"`
}

const summarizerSystemPrompt = `You summarize a browsing agent's action history. Produce a compact bullet list, roughly 200-300 characters total, covering: which pages were visited, which actions were taken and their outcomes, and any findings relevant to the objective. Keep only information a future step could need. Output the summary text directly, no preamble.`

// Conversation holds the rolling decision history and compresses it
// through the fast model tier once it grows past the configured
// limit, so long tasks keep a bounded prompt.
type Conversation struct {
	messages       []Message
	historySummary string
	maxMessages    int
	keepRecent     int
	llm            schemas.LLMClient
	logger         *zap.Logger
}

func NewConversation(llm schemas.LLMClient, maxMessages, keepRecent int, logger *zap.Logger) *Conversation {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	if keepRecent <= 0 || keepRecent >= maxMessages {
		keepRecent = maxMessages / 2
	}
	return &Conversation{
		maxMessages: maxMessages,
		keepRecent:  keepRecent,
		llm:         llm,
		logger:      logger.Named("conversation"),
	}
}

// Append adds a turn to the history.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

// Messages returns the retained turns, oldest first.
func (c *Conversation) Messages() []Message {
	return c.messages
}

// HistorySummary returns the accumulated summary of compressed turns.
func (c *Conversation) HistorySummary() string {
	return c.historySummary
}

// Len returns the number of retained turns.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// CompressIfNeeded folds older turns into the history summary once the
// history exceeds the limit, keeping only the most recent turns
// verbatim. A failed summarization still truncates, with a placeholder
// noting the loss.
func (c *Conversation) CompressIfNeeded(ctx context.Context) {
	if len(c.messages) <= c.maxMessages {
		return
	}

	cut := len(c.messages) - c.keepRecent
	older := c.messages[:cut]

	c.logger.Info("Compressing conversation history",
		zap.Int("total", len(c.messages)),
		zap.Int("compressing", cut),
		zap.Int("keeping", c.keepRecent))

	summary := c.summarize(ctx, older)
	if c.historySummary != "" {
		c.historySummary += "\n"
	}
	c.historySummary += summary

	kept := make([]Message, c.keepRecent)
	copy(kept, c.messages[cut:])
	c.messages = kept
}

func (c *Conversation) summarize(ctx context.Context, msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}

	req := schemas.GenerationRequest{
		SystemPrompt: summarizerSystemPrompt,
		UserPrompt:   b.String(),
		Tier:         schemas.TierFast,
	}
	response, err := c.llm.Generate(ctx, req)
	if err != nil {
		c.logger.Warn("History summarization failed", zap.Error(err))
		return fmt.Sprintf("(%d earlier steps were dropped; their summary is unavailable)", len(msgs))
	}
	return strings.TrimSpace(response)
}

// Stats reports history size for logging and the exported transcript.
func (c *Conversation) Stats() map[string]interface{} {
	return map[string]interface{}{
		"message_count":      len(c.messages),
		"max_messages":       c.maxMessages,
		"keep_recent":        c.keepRecent,
		"has_summary":        c.historySummary != "",
		"summary_characters": len(c.historySummary),
	}
}
