package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/fallback"
	"github.com/loomhq/loom/internal/guardrails"
	"github.com/loomhq/loom/internal/providers"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/pkg/models"
)

// Orchestrator owns the message history and ledger of a single turn-loop
// invocation. Persistent stores are shared; the orchestrator itself is
// not reused across concurrent runs.
type Orchestrator struct {
	provider   providers.Provider
	registry   *tools.Registry
	guardrails []guardrails.Guardrail
	cfg        Config
	logger     *slog.Logger

	ledger *Ledger
}

// New builds an orchestrator over an already-constructed provider and a
// frozen tool registry.
func New(provider providers.Provider, registry *tools.Registry, rails []guardrails.Guardrail, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		provider:   provider,
		registry:   registry,
		guardrails: rails,
		cfg:        cfg.withDefaults(),
		logger:     logger.With("component", "orchestrator"),
		ledger:     NewLedger(cfg.ProjectRoot),
	}
}

// Ledger exposes the run's analysis ledger.
func (o *Orchestrator) Ledger() *Ledger { return o.ledger }

// suppressingSender filters adapter lifecycle events out of the
// subscriber stream; the orchestrator re-emits its own tool results and
// completion after executing the tools, so forwarding the adapter's
// Complete, Usage, ToolStart, and ToolComplete would double-count.
type suppressingSender struct {
	inner models.StreamSender
}

func (s *suppressingSender) Send(ev models.UnifiedStreamEvent) bool {
	switch ev.Type {
	case models.EventComplete, models.EventUsage, models.EventToolStart, models.EventToolComplete:
		return true
	}
	if s.inner == nil {
		return true
	}
	return s.inner.Send(ev)
}

// Run executes the turn loop for one user request. sender may be nil for
// non-streaming callers; when set, it receives text/thinking deltas,
// tool results, and a final complete or error event.
func (o *Orchestrator) Run(ctx context.Context, userInput string, sender models.StreamSender) (*RunResult, error) {
	result := &RunResult{StopCause: StopCompleted}

	for _, rail := range o.guardrails {
		if verdict := rail.Validate(userInput, guardrails.DirectionInput); verdict.Kind == guardrails.VerdictBlock {
			return o.fail(result, sender, providers.KindInvalidRequest, verdict.Reason)
		}
	}

	system := o.composeSystemPrompt()
	history := []models.Message{models.NewTextMessage(models.RoleUser, userInput)}

	var finalContent, finalThinking string

	for iteration := 0; ; iteration++ {
		result.Iterations = iteration + 1

		if err := ctx.Err(); err != nil {
			result.StopCause = StopCancelled
			result.Error = "cancelled"
			result.History = history
			return result, nil
		}

		if o.cfg.EnableCompaction {
			history = CompactHistory(history, o.provider.ContextWindow())
		}

		resp, err := o.ask(ctx, history, system, sender)
		if err != nil {
			if errors.Is(err, context.Canceled) || providers.KindOf(err) == providers.KindCancelled {
				if resp != nil {
					result.Usage.Merge(resp.Usage)
				}
				result.StopCause = StopCancelled
				result.Error = "cancelled"
				result.History = history
				return result, nil
			}
			if resp != nil {
				result.Usage.Merge(resp.Usage)
			}
			return o.fail(result, sender, providers.KindOf(err), err.Error())
		}

		result.Usage.Merge(resp.Usage)

		for _, rail := range o.guardrails {
			if verdict := rail.Validate(resp.Content, guardrails.DirectionOutput); verdict.Kind == guardrails.VerdictBlock {
				return o.fail(result, sender, providers.KindInvalidRequest, verdict.Reason)
			}
		}

		toolCalls := resp.ToolCalls
		visibleText := resp.Content

		// Weak tool channels: recover calls from content and thinking.
		if len(toolCalls) == 0 {
			parsed := fallback.ParseToolCalls(resp.Content)
			parsed = append(parsed, fallback.ParseToolCalls(resp.Thinking)...)
			for _, p := range parsed {
				if _, known := o.registry.Lookup(p.ToolName); !known {
					o.ledger.AddWarning(fmt.Sprintf("dropped parsed call to unknown tool %q", p.ToolName))
					continue
				}
				toolCalls = append(toolCalls, models.ToolCall{
					ID:        "call_" + uuid.NewString()[:8],
					Name:      p.ToolName,
					Arguments: p.Arguments,
				})
			}
			if len(parsed) > 0 {
				visibleText = fallback.ExtractTextWithoutToolCalls(resp.Content)
			}
		}

		history = append(history, assistantMessage(visibleText, resp.Thinking, toolCalls))
		finalContent = visibleText
		finalThinking = resp.Thinking

		// Terminal: no pending tool calls after native and fallback
		// extraction.
		if len(toolCalls) == 0 {
			break
		}

		// Execute sequentially; each result feeds back as a user message.
		var resultBlocks []models.ContentBlock
		for _, call := range toolCalls {
			block := o.executeToolCall(ctx, call)
			resultBlocks = append(resultBlocks, block)
			if sender != nil {
				b := block
				sender.Send(models.UnifiedStreamEvent{Type: models.EventToolResult, ToolID: call.ID, ToolName: call.Name, Result: &b})
			}
			if err := ctx.Err(); err != nil {
				result.StopCause = StopCancelled
				result.Error = "cancelled"
				result.History = history
				return result, nil
			}
		}
		history = append(history, models.Message{Role: models.RoleUser, Content: resultBlocks})

		if o.cfg.MaxTotalTokens > 0 && result.Usage.Total() >= o.cfg.MaxTotalTokens {
			result.StopCause = StopBudgetExceeded
			result.Error = fmt.Sprintf("token budget of %d exceeded", o.cfg.MaxTotalTokens)
			break
		}
		if iteration+1 >= o.cfg.MaxIterations {
			result.StopCause = StopIterationLimit
			result.Error = fmt.Sprintf("reached max iterations: %d", o.cfg.MaxIterations)
			break
		}
	}

	result.Success = result.StopCause == StopCompleted ||
		result.StopCause == StopBudgetExceeded || result.StopCause == StopIterationLimit
	result.Content = finalContent
	result.Thinking = finalThinking
	result.History = history

	if sender != nil {
		sender.Send(models.UnifiedStreamEvent{Type: models.EventComplete, StopReason: models.StopEndTurn})
	}
	return result, nil
}

// ask performs one provider round trip, streaming when configured.
func (o *Orchestrator) ask(ctx context.Context, history []models.Message, system string, sender models.StreamSender) (*models.LlmResponse, error) {
	defs := o.registry.Definitions()
	opts := models.RequestOptions{}

	if o.cfg.Streaming {
		return o.provider.StreamMessage(ctx, &suppressingSender{inner: sender}, history, system, defs, opts)
	}
	return o.provider.SendMessage(ctx, history, system, defs, opts)
}

// executeToolCall repairs, validates, and runs one call, returning the
// tool_result block fed back into the conversation. Execution errors
// become is_error results and never abort the loop.
func (o *Orchestrator) executeToolCall(ctx context.Context, call models.ToolCall) models.ContentBlock {
	repaired, err := o.repairToolCall(call)
	if err != nil {
		o.ledger.AddWarning(fmt.Sprintf("rejected %s call: %v", call.Name, err))
		return models.ContentBlock{
			Type: models.BlockToolResult, ToolUseID: call.ID,
			Content: err.Error(), IsError: true,
		}
	}

	o.ledger.ObserveToolCall(repaired)

	for _, rail := range o.guardrails {
		if verdict := rail.Validate(call.Name, guardrails.DirectionTool); verdict.Kind == guardrails.VerdictBlock {
			return models.ContentBlock{
				Type: models.BlockToolResult, ToolUseID: call.ID,
				Content: verdict.Reason, IsError: true,
			}
		}
	}

	result := o.registry.Execute(ctx, repaired)
	o.ledger.ObserveToolResult(repaired, result.Content, result.IsError)

	return models.ContentBlock{
		Type: models.BlockToolResult, ToolUseID: call.ID,
		Content: result.Content, IsError: result.IsError,
	}
}

// composeSystemPrompt appends the bilingual tool-call instructions when
// the effective fallback mode asks for them: Soft always injects,
// Off always suppresses, Auto follows the provider's reliability tag.
func (o *Orchestrator) composeSystemPrompt() string {
	system := o.cfg.SystemPrompt

	mode := o.cfg.Provider.FallbackMode
	if mode == "" || mode == models.FallbackAuto {
		mode = o.provider.DefaultFallbackMode()
		if mode == "" || mode == models.FallbackAuto {
			switch o.provider.ToolCallReliability() {
			case models.ReliabilityReliable:
				mode = models.FallbackOff
			default:
				mode = models.FallbackSoft
			}
		}
	}

	if mode == models.FallbackSoft {
		instructions := fallback.BuildToolCallInstructions(o.registry.Definitions())
		if system == "" {
			return instructions
		}
		return system + "\n\n" + instructions
	}
	return system
}

func (o *Orchestrator) fail(result *RunResult, sender models.StreamSender, kind providers.ErrorKind, message string) (*RunResult, error) {
	result.Success = false
	result.StopCause = StopError
	result.Error = fmt.Sprintf("[%s] %s", kind, message)
	if sender != nil {
		sender.Send(models.UnifiedStreamEvent{Type: models.EventError, Message: message, Code: string(kind)})
	}
	o.logger.Warn("run failed", "kind", string(kind), "error", message)
	return result, nil
}

func assistantMessage(text, thinking string, calls []models.ToolCall) models.Message {
	var blocks []models.ContentBlock
	if thinking != "" {
		blocks = append(blocks, models.ContentBlock{Type: models.BlockThinking, Text: thinking})
	}
	if strings.TrimSpace(text) != "" {
		blocks = append(blocks, models.ContentBlock{Type: models.BlockText, Text: text})
	}
	for _, call := range calls {
		blocks = append(blocks, models.ContentBlock{
			Type: models.BlockToolUse, ID: call.ID, Name: call.Name, Input: call.Arguments,
		})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, models.ContentBlock{Type: models.BlockText, Text: ""})
	}
	return models.Message{Role: models.RoleAssistant, Content: blocks}
}
