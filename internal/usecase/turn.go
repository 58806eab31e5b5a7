package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"smart-query/internal/domain"
	"smart-query/internal/infra/tracer"
)

// Turn loop defaults.
const (
	DefaultMaxToolRounds = 8
	DefaultToolTimeout   = 30 * time.Second
)

// TurnConfig holds the resolved, read-only settings for one turn. It is
// constructed once per request and never mutated during the turn.
type TurnConfig struct {
	ModelRef       string // "provider/model"; bare provider uses its default model
	PromptTemplate string // empty uses DefaultSystemPrompt
	UserName       string
	WindowSize     int
	MaxToolRounds  int
	ToolTimeout    time.Duration
	MaxTokens      int
	Temperature    float64
	ToolSettings   domain.ToolSettings
}

func (c TurnConfig) withDefaults() TurnConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	return c
}

// StreamEvent is one increment of a streaming turn.
type StreamEvent struct {
	Delta   string          `json:"delta,omitempty"`   // incremental assistant text
	Message *domain.Message `json:"message,omitempty"` // a message appended to the transcript
	Done    bool            `json:"done,omitempty"`    // terminal marker
}

// StreamEmitter receives stream events in production order. It must not
// block indefinitely; emission happens on the turn's goroutine.
type StreamEmitter func(StreamEvent)

// TurnDeps holds injected dependencies for the orchestrator.
type TurnDeps struct {
	Providers domain.ProviderRegistry
	Tools     domain.ToolExecutor
	Store     ThreadStore
	Locker    *ThreadLocker
	Guard     *PromptGuard // optional, nil = no prompt budget check
	Logger    *slog.Logger
}

// Orchestrator composes the model invoker, routing, tool execution, and
// history eviction into one full request-response cycle.
type Orchestrator struct {
	deps TurnDeps
}

// NewOrchestrator creates an orchestrator with the given dependencies.
func NewOrchestrator(deps TurnDeps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// RunTurn processes the incoming messages through the tool-calling loop and
// returns the thread's updated conversation state. Turns on the same thread
// are serialized; the persisted state is committed once, after the loop, so
// a failed or cancelled turn leaves no partial state.
func (o *Orchestrator) RunTurn(ctx context.Context, threadID string, incoming []domain.Message, cfg TurnConfig) (*domain.Thread, error) {
	return o.runInner(ctx, threadID, incoming, cfg, nil)
}

// RunTurnStream is RunTurn with incremental output: assistant text deltas
// and completed messages are emitted as they are produced, followed by a
// terminal Done event. If the resolved provider cannot stream, whole
// messages are emitted as they complete.
func (o *Orchestrator) RunTurnStream(ctx context.Context, threadID string, incoming []domain.Message, cfg TurnConfig, emit StreamEmitter) (*domain.Thread, error) {
	if emit == nil {
		return o.runInner(ctx, threadID, incoming, cfg, nil)
	}
	return o.runInner(ctx, threadID, incoming, cfg, emit)
}

func (o *Orchestrator) runInner(ctx context.Context, threadID string, incoming []domain.Message, cfg TurnConfig, emit StreamEmitter) (*domain.Thread, error) {
	cfg = cfg.withDefaults()

	spanName := "turn.run"
	opName := "Orchestrator.RunTurn"
	if emit != nil {
		spanName = "turn.run_stream"
		opName = "Orchestrator.RunTurnStream"
	}
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("thread.id", threadID)),
	)
	defer span.End()

	providerName, model := splitModelRef(cfg.ModelRef)
	provider, err := o.deps.Providers.Get(providerName)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	// Settings validation happens before the lock and before any model or
	// tool call: a turn with incomplete settings never starts.
	if err := o.validateToolSettings(cfg.ToolSettings); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	unlock, err := o.deps.Locker.Lock(ctx, threadID)
	if err != nil {
		return nil, domain.NewDomainError(opName, err, "thread lock")
	}
	defer unlock()

	thread, err := o.deps.Store.Get(ctx, threadID)
	if errors.Is(err, domain.ErrThreadNotFound) {
		thread = &domain.Thread{ID: threadID, CreatedAt: time.Now()}
	} else if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	ctx = domain.ContextWithThreadID(ctx, threadID)
	ctx = domain.ContextWithToolSettings(ctx, cfg.ToolSettings)

	msgs := make([]domain.Message, 0, len(thread.Messages)+len(incoming))
	msgs = append(msgs, thread.Messages...)
	for _, m := range incoming {
		msgs = append(msgs, stampMessage(m))
	}

	history := NewHistoryManager(cfg.WindowSize)
	system := domain.Message{
		Role:      domain.RoleSystem,
		Content:   RenderSystemPrompt(cfg.PromptTemplate, cfg.UserName, time.Now()),
		Timestamp: time.Now(),
	}

	lastStep := false
	for round := 0; ; round++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		span.AddEvent("turn.round", trace.WithAttributes(tracer.IntAttr("round", round)))

		window := lastWindow(msgs, history.Window())
		req := domain.ChatRequest{
			Model:       model,
			Messages:    append([]domain.Message{system}, window...),
			Tools:       o.deps.Tools.Schemas(),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}

		if o.deps.Guard != nil {
			if err := o.deps.Guard.Check(req.Messages); err != nil {
				tracer.RecordError(span, err)
				return nil, err
			}
		}

		msg, usage, err := o.callModel(ctx, provider, req, emit)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}

		decision, err := Route(msg)
		if err != nil {
			// Contract violation by the provider; fatal, nothing persisted.
			tracer.RecordError(span, err)
			return nil, err
		}

		msg = stampMessage(msg)
		msgs = append(msgs, msg)
		if emit != nil {
			emit(StreamEvent{Message: &msg})
		}

		o.deps.Logger.Debug("model response",
			"thread_id", threadID,
			"round", round,
			"tool_calls", len(msg.ToolCalls),
			"tokens", usage.TotalTokens,
		)

		if decision == RouteDone {
			lastStep = round+1 >= cfg.MaxToolRounds
			break
		}

		if round+1 >= cfg.MaxToolRounds {
			loopErr := domain.NewDomainError(opName, domain.ErrToolLoopExceeded,
				fmt.Sprintf("%d rounds", cfg.MaxToolRounds))
			tracer.RecordError(span, loopErr)
			return nil, loopErr
		}

		// Execute the round's tool calls concurrently; results are collected
		// into an indexed slice so they append in request order.
		toolMsgs := make([]domain.Message, len(msg.ToolCalls))
		toolErrs := make([]error, len(msg.ToolCalls))
		var wg sync.WaitGroup
		for i, call := range msg.ToolCalls {
			wg.Add(1)
			go func(idx int, c domain.ToolCall) {
				defer wg.Done()
				toolMsgs[idx], toolErrs[idx] = o.executeTool(ctx, cfg.ToolTimeout, c)
			}(i, call)
		}
		wg.Wait()

		for _, toolErr := range toolErrs {
			if toolErr != nil {
				tracer.RecordError(span, toolErr)
				return nil, toolErr
			}
		}
		for i := range toolMsgs {
			toolMsgs[i] = stampMessage(toolMsgs[i])
			msgs = append(msgs, toolMsgs[i])
			if emit != nil {
				emit(StreamEvent{Message: &toolMsgs[i]})
			}
		}
	}

	retained, evictions := history.Cap(msgs)
	thread.Messages = retained
	thread.LastStep = lastStep
	thread.UpdatedAt = time.Now()

	if err := o.deps.Store.Commit(ctx, thread, evictions); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	if emit != nil {
		emit(StreamEvent{Done: true})
	}
	tracer.SetOK(span)
	return thread, nil
}

// callModel performs one model invocation. Streaming is used when an emitter
// is attached and the provider supports it; deltas are forwarded as they
// arrive and accumulated into the complete assistant message.
func (o *Orchestrator) callModel(ctx context.Context, provider domain.LLMProvider, req domain.ChatRequest, emit StreamEmitter) (domain.Message, domain.Usage, error) {
	if emit != nil {
		if sp, ok := provider.(domain.StreamingLLMProvider); ok {
			llmCtx, llmSpan := tracer.StartSpan(ctx, "turn.model_stream")
			deltaCh, err := sp.ChatStream(llmCtx, req)
			llmSpan.End()
			if err != nil {
				return domain.Message{}, domain.Usage{}, err
			}

			acc := newStreamAccumulator()
			for delta := range deltaCh {
				if delta.Content != "" {
					emit(StreamEvent{Delta: delta.Content})
				}
				acc.addDelta(delta)
			}
			// A cancelled stream must not yield a partial message.
			if ctx.Err() != nil {
				return domain.Message{}, domain.Usage{}, ctx.Err()
			}
			msg, usage := acc.build()
			return msg, usage, nil
		}
	}

	llmCtx, llmSpan := tracer.StartSpan(ctx, "turn.model_call")
	resp, err := provider.Chat(llmCtx, req)
	llmSpan.End()
	if err != nil {
		return domain.Message{}, domain.Usage{}, err
	}
	return resp.Message, resp.Usage, nil
}

// executeTool runs a single tool call under the per-tool deadline and
// returns the result as a tool message. Unknown tools and invalid arguments
// are absorbed as error payloads in the transcript so the model can
// self-correct; any other failure aborts the turn.
func (o *Orchestrator) executeTool(ctx context.Context, timeout time.Duration, call domain.ToolCall) (domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "turn.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	tool, err := o.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		return toolErrorMessage(call, err), nil
	}

	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := tool.Execute(toolCtx, call.Arguments)
	if err != nil {
		tracer.RecordError(span, err)
		if domain.IsAbsorbable(err) {
			return toolErrorMessage(call, err), nil
		}
		return domain.Message{}, domain.WrapOp("tool "+call.Name, err)
	}

	tracer.SetOK(span)
	return domain.Message{
		Role:       domain.RoleTool,
		Name:       call.Name,
		Content:    result.Content,
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}, nil
}

// validateToolSettings asks every registered tool that depends on
// turn-scoped settings to confirm the turn supplies what it needs.
func (o *Orchestrator) validateToolSettings(s domain.ToolSettings) error {
	for _, schema := range o.deps.Tools.Schemas() {
		tool, err := o.deps.Tools.Get(schema.Name)
		if err != nil {
			continue
		}
		if v, ok := tool.(domain.SettingsValidator); ok {
			if err := v.ValidateSettings(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// toolErrorMessage shapes an absorbed tool failure as a structured error
// payload tagged with the originating call.
func toolErrorMessage(call domain.ToolCall, err error) domain.Message {
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
		"code":  string(domain.ErrorCodeOf(err)),
	})
	return domain.Message{
		Role:       domain.RoleTool,
		Name:       call.Name,
		Content:    string(payload),
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}
}

// stampMessage assigns an ID and timestamp if the message lacks them.
// Messages without IDs could never be evicted by reference.
func stampMessage(m domain.Message) domain.Message {
	if m.ID == "" {
		m.ID = NewMessageID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return m
}

// lastWindow returns the last n messages, or all of them if fewer.
func lastWindow(msgs []domain.Message, n int) []domain.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// splitModelRef splits a "provider/model" reference. A bare provider name
// selects the provider's configured default model.
func splitModelRef(ref string) (provider, model string) {
	provider, model, found := strings.Cut(ref, "/")
	if !found {
		return ref, ""
	}
	return provider, model
}

// maxStreamToolCalls limits the number of tool call slots the accumulator
// will allocate. Indices beyond this bound are silently dropped to prevent
// memory exhaustion from malformed streaming deltas.
const maxStreamToolCalls = 50

// streamAccumulator collects incremental deltas into a complete message.
type streamAccumulator struct {
	content   strings.Builder
	toolCalls []domain.ToolCall // slot per provider-reported call index
	usage     domain.Usage
}

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{}
}

// addDelta merges a single streaming delta into the accumulator. Tool call
// fragments are merged by their provider-reported index, not their position
// in the delta: the first fragment for an index provides ID and Name,
// subsequent fragments append to Arguments.
func (acc *streamAccumulator) addDelta(delta domain.StreamDelta) {
	acc.content.WriteString(delta.Content)

	for _, tc := range delta.ToolCalls {
		if tc.Index < 0 || tc.Index >= maxStreamToolCalls {
			continue
		}

		// Grow slice to accommodate this index.
		for len(acc.toolCalls) <= tc.Index {
			acc.toolCalls = append(acc.toolCalls, domain.ToolCall{})
		}

		existing := &acc.toolCalls[tc.Index]
		if tc.ID != "" {
			existing.ID = tc.ID
		}
		if tc.Name != "" {
			existing.Name = tc.Name
		}
		if tc.Arguments != "" {
			existing.Arguments = append(existing.Arguments, tc.Arguments...)
		}
	}

	if delta.Usage != nil {
		acc.usage = *delta.Usage
	}
}

// build returns the accumulated message and usage.
func (acc *streamAccumulator) build() (domain.Message, domain.Usage) {
	msg := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   acc.content.String(),
		ToolCalls: acc.toolCalls,
		Timestamp: time.Now(),
	}
	return msg, acc.usage
}
