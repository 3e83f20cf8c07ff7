// Package orchestrator drives the bounded model/tool round-trip loop
// behind one chat turn: persist the inbound user message, alternate
// between inference and tool execution, checkpoint each completed step
// into the thread, and stream text to the caller as it is produced.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aviara/copilot/internal/llm"
	"github.com/aviara/copilot/internal/prompts"
	"github.com/aviara/copilot/internal/settings"
	"github.com/aviara/copilot/internal/thread"
)

// DefaultMaxToolRounds bounds model/tool round trips per request when
// no ceiling is configured.
const DefaultMaxToolRounds = 5

// ThreadRepository is the persistence surface the orchestrator needs.
// *thread.SQLiteStore satisfies it.
type ThreadRepository interface {
	CreateConversation(ctx context.Context, userID, titleSeed string) (*thread.Conversation, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*thread.Conversation, error)
	TouchConversation(ctx context.Context, conversationID string) error
	UpdateTitle(ctx context.Context, conversationID, title string) error
	AppendMessage(ctx context.Context, m thread.Message) (*thread.Message, error)
	FindThreadTail(ctx context.Context, conversationID string) (*thread.Message, error)
	ReconstructThread(ctx context.Context, conversationID string) ([]thread.Message, error)
}

// ToolExecutor is the registry surface the loop consults.
// *tools.Registry satisfies it.
type ToolExecutor interface {
	List() []map[string]any
	Execute(ctx context.Context, name, argsJSON string) (string, error)
}

// SettingsResolver produces per-user generation parameters.
type SettingsResolver interface {
	Resolve(ctx context.Context, userID string) settings.GenerationSettings
}

// ErrConversationNotFound is returned when the caller supplies a
// conversation id that does not exist or belongs to another user.
var ErrConversationNotFound = errors.New("conversation not found")

// Config for the orchestrator.
type Config struct {
	Model         string
	TitleModel    string // defaults to Model
	MaxToolRounds int    // defaults to DefaultMaxToolRounds
}

// Orchestrator runs chat turns.
type Orchestrator struct {
	logger        *slog.Logger
	threads       ThreadRepository
	registry      ToolExecutor
	llm           llm.Client
	settings      SettingsResolver
	model         string
	titleModel    string
	maxToolRounds int
}

// New creates an orchestrator.
func New(logger *slog.Logger, threads ThreadRepository, registry ToolExecutor, client llm.Client, resolver SettingsResolver, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	titleModel := cfg.TitleModel
	if titleModel == "" {
		titleModel = cfg.Model
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxToolRounds
	}
	return &Orchestrator{
		logger:        logger.With("component", "orchestrator"),
		threads:       threads,
		registry:      registry,
		llm:           client,
		settings:      resolver,
		model:         cfg.Model,
		titleModel:    titleModel,
		maxToolRounds: maxRounds,
	}
}

// Request is one inbound chat turn.
type Request struct {
	UserID         string
	ConversationID string // empty to start a new conversation
	Content        string // the user's utterance
	Stream         llm.StreamCallback

	// Started, when set, fires once after the critical path is durable
	// and before any stream event. HTTP handlers use it to emit the
	// conversation id header while headers can still be written.
	Started func(conversationID string, created bool)
}

// Result is the outcome of a completed turn. The primary stream has
// already been delivered through the request callback by the time Run
// returns.
type Result struct {
	ConversationID string
	Created        bool // a new conversation was started for this turn
	Content        string
	Rounds         int

	titleDone chan struct{}
}

// Wait blocks until the detached title generation settles. Turns that
// spawned none (existing conversations, failed turns) return
// immediately. The request is not fully accounted for until Wait
// returns.
func (r *Result) Wait() {
	if r.titleDone != nil {
		<-r.titleDone
	}
}

// Run executes one chat turn. Failures before the first persisted byte
// (missing conversation, critical-path persistence) return an error
// with no partial output; failures after streaming has begun terminate
// the stream and surface here as an error alongside whatever was sent.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("empty message content")
	}

	gs := o.settings.Resolve(ctx, req.UserID)

	// Critical path: the conversation and the user's message must be
	// durable before inference cost is incurred.
	conv, created, err := o.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := o.threads.TouchConversation(ctx, conv.ID); err != nil {
		o.logger.Warn("touch conversation failed", "conversation_id", conv.ID, "error", err)
	}

	tail, err := o.threads.FindThreadTail(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("find thread tail: %w", err)
	}
	parentID := ""
	if tail != nil {
		parentID = tail.ID
	}

	userMsg, err := o.threads.AppendMessage(ctx, thread.Message{
		ConversationID: conv.ID,
		UserID:         req.UserID,
		Role:           thread.RoleUser,
		Content:        req.Content,
		ParentID:       parentID,
	})
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	o.logger.Info("turn started",
		"conversation_id", conv.ID,
		"user_id", req.UserID,
		"created", created,
		"tone", gs.Tone,
	)

	if req.Started != nil {
		req.Started(conv.ID, created)
	}

	result := &Result{ConversationID: conv.ID, Created: created}

	content, rounds, loopErr := o.runLoop(ctx, conv, userMsg, gs, req.Stream)
	result.Content = content
	result.Rounds = rounds

	if loopErr != nil {
		return result, loopErr
	}

	// Title generation runs only for turns that completed. It is detached
	// from the primary response but still tracked: Wait joins it for
	// completion accounting. A failed turn keeps the seeded title.
	if created {
		result.titleDone = make(chan struct{})
		go o.generateTitle(conv.ID, req.Content, result.titleDone)
	}

	if req.Stream != nil {
		req.Stream(llm.StreamEvent{Kind: llm.KindDone})
	}

	o.logger.Info("turn completed",
		"conversation_id", conv.ID,
		"rounds", rounds,
		"content_len", len(content),
	)
	return result, nil
}

func (o *Orchestrator) resolveConversation(ctx context.Context, req Request) (*thread.Conversation, bool, error) {
	if req.ConversationID != "" {
		conv, err := o.threads.GetConversation(ctx, req.ConversationID, req.UserID)
		if err != nil {
			return nil, false, fmt.Errorf("load conversation: %w", err)
		}
		if conv == nil {
			return nil, false, ErrConversationNotFound
		}
		return conv, false, nil
	}

	conv, err := o.threads.CreateConversation(ctx, req.UserID, req.Content)
	if err != nil {
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

// runLoop alternates between inference and tool execution until the
// model produces a text-only step, the round ceiling is hit, or the
// context is cancelled. Each completed step is checkpointed best-effort.
func (o *Orchestrator) runLoop(ctx context.Context, conv *thread.Conversation, userMsg *thread.Message, gs settings.GenerationSettings, stream llm.StreamCallback) (string, int, error) {
	history, err := o.threads.ReconstructThread(ctx, conv.ID)
	if err != nil {
		// History is recoverable: the current turn alone still makes a
		// valid (if amnesiac) context.
		o.logger.Warn("reconstruct thread failed", "conversation_id", conv.ID, "error", err)
		history = []thread.Message{*userMsg}
	}

	messages := ContextMessages(prompts.System(gs.Tone), history)
	toolDefs := o.registry.List()
	opts := gs.Options()

	// Provider-level done events fire once per round; the single
	// turn-level done event is emitted by Run.
	var cb llm.StreamCallback
	if stream != nil {
		cb = func(ev llm.StreamEvent) {
			if ev.Kind == llm.KindDone {
				return
			}
			stream(ev)
		}
	}

	parentID := userMsg.ID
	var finalText strings.Builder

	for round := 0; round < o.maxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return finalText.String(), round, fmt.Errorf("turn cancelled: %w", err)
		}

		roundStart := time.Now()
		resp, err := o.llm.ChatStream(ctx, o.model, messages, toolDefs, opts, cb)
		if err != nil {
			// Bytes may already be in flight; the caller observes a
			// terminated stream, not a clean error body.
			return finalText.String(), round, fmt.Errorf("inference failed (round %d): %w", round, err)
		}

		o.logger.Debug("model step",
			"conversation_id", conv.ID,
			"round", round,
			"tool_calls", len(resp.Message.ToolCalls),
			"elapsed", time.Since(roundStart).Round(time.Millisecond),
		)

		if resp.Message.Content != "" {
			if finalText.Len() > 0 {
				finalText.WriteString("\n\n")
			}
			finalText.WriteString(resp.Message.Content)
		}

		// Text-only step means the model is done.
		if len(resp.Message.ToolCalls) == 0 {
			step := TransformStep(conv.ID, userMsg.UserID, parentID, resp.Message, nil)
			o.checkpoint(ctx, step)
			return finalText.String(), round + 1, nil
		}

		invocations := o.executeTools(ctx, conv.ID, resp.Message.ToolCalls, stream)

		step := TransformStep(conv.ID, userMsg.UserID, parentID, resp.Message, invocations)
		if persisted := o.checkpoint(ctx, step); persisted != nil {
			parentID = persisted.ID
		}

		messages = append(messages, resp.Message)
		for i, tc := range resp.Message.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    invocationFeedback(invocations[i]),
				ToolCallID: tc.ID,
			})
		}
	}

	// Ceiling reached: complete with whatever text exists.
	o.logger.Warn("tool round ceiling reached",
		"conversation_id", conv.ID,
		"max_rounds", o.maxToolRounds,
	)
	text := finalText.String()
	if text == "" {
		text = prompts.EmptyResponseFallback
		if stream != nil {
			stream(llm.StreamEvent{Kind: llm.KindToken, Token: text})
		}
	}
	step := TransformStep(conv.ID, userMsg.UserID, parentID, llm.Message{Role: thread.RoleAssistant, Content: text}, nil)
	o.checkpoint(ctx, step)
	return text, o.maxToolRounds, nil
}

// executeTools runs one step's tool calls sequentially. A failing call
// is marked failed and the loop continues; it never aborts the turn.
func (o *Orchestrator) executeTools(ctx context.Context, conversationID string, calls []llm.ToolCall, stream llm.StreamCallback) []thread.ToolInvocation {
	invocations := make([]thread.ToolInvocation, len(calls))
	for i, tc := range calls {
		inv := NewInvocation(tc)

		toolStart := time.Now()
		result, err := o.registry.Execute(ctx, tc.Function.Name, string(inv.Args))
		if err != nil {
			inv.State = thread.StateFailed
			inv.Error = err.Error()
			o.logger.Error("tool call failed",
				"conversation_id", conversationID,
				"tool", tc.Function.Name,
				"error", err,
			)
		} else {
			MarkResult(&inv, result)
			o.logger.Debug("tool call done",
				"conversation_id", conversationID,
				"tool", tc.Function.Name,
				"result_len", len(result),
				"elapsed", time.Since(toolStart).Round(time.Millisecond),
			)
		}
		invocations[i] = inv

		if stream != nil {
			stream(llm.StreamEvent{
				Kind:       llm.KindToolCallDone,
				ToolName:   tc.Function.Name,
				ToolResult: string(inv.Result),
				ToolError:  inv.Error,
			})
		}
	}
	return invocations
}

// checkpoint persists one completed step. Failures are logged and
// swallowed: the stream and the in-memory turn continue, the step is
// just not durable.
func (o *Orchestrator) checkpoint(ctx context.Context, step thread.Message) *thread.Message {
	persisted, err := o.threads.AppendMessage(ctx, step)
	if err != nil {
		o.logger.Error("checkpoint failed",
			"conversation_id", step.ConversationID,
			"role", step.Role,
			"error", err,
		)
		return nil
	}
	return persisted
}

// generateTitle issues one non-streamed inference call to replace the
// seeded title. Failure keeps the seed; the channel closes either way.
func (o *Orchestrator) generateTitle(conversationID, firstMessage string, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := o.llm.Chat(ctx, o.titleModel, []llm.Message{
		{Role: "user", Content: prompts.Title(firstMessage)},
	}, nil, nil)
	if err != nil {
		o.logger.Warn("title generation failed", "conversation_id", conversationID, "error", err)
		return
	}

	title := CleanTitle(resp.Message.Content)
	if title == "" {
		o.logger.Warn("title generation returned nothing usable", "conversation_id", conversationID)
		return
	}

	if err := o.threads.UpdateTitle(ctx, conversationID, title); err != nil {
		o.logger.Warn("title update failed", "conversation_id", conversationID, "error", err)
		return
	}
	o.logger.Debug("title generated", "conversation_id", conversationID, "title", title)
}

// invocationFeedback is what the model sees as a tool's output on the
// next round.
func invocationFeedback(inv thread.ToolInvocation) string {
	if inv.State == thread.StateFailed {
		return "Error: " + inv.Error
	}
	return string(inv.Result)
}
