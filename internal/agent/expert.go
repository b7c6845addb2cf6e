// Package agent implements the documentation expert: a bounded
// tool-calling loop over the retrieval tools.
//
// The loop is explicit rather than delegated to Genkit's internal runner
// (ai.WithReturnToolRequests): tool requests come back to us, are dispatched
// over a closed set of tool names, and their responses are appended to the
// conversation before the next model call. The number of tool rounds is
// hard-bounded, so a model that keeps requesting tools cannot spin forever.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

const (
	// fallbackAnswer is returned when the model produces no usable text.
	fallbackAnswer = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// exhaustedNote is logged when the loop runs out of tool rounds.
	exhaustedNote = "tool round budget exhausted, answering with available text"
)

// ErrExecutionFailed indicates agent execution failed.
var ErrExecutionFailed = errors.New("execution failed")

// Response is the result of one agent turn.
type Response struct {
	// Answer is the model's final text.
	Answer string

	// NewMessages are the turns to append to session history: the user's
	// question and the final answer. Intermediate tool traffic is not
	// persisted. The caller's input history is never mutated.
	NewMessages []*ai.Message

	// ToolCalls names the tools invoked during the turn, in order.
	ToolCalls []string

	// Exhausted reports that the tool round budget ran out before the
	// model stopped requesting tools.
	Exhausted bool
}

// Config contains all required parameters for the Expert.
type Config struct {
	Genkit *genkit.Genkit
	Tools  *Tools
	Logger *slog.Logger

	// ModelName is the provider-qualified model (e.g. "googleai/gemini-2.5-flash").
	ModelName string

	// MaxToolRounds bounds how many times the model may request tools in
	// one turn. Total model calls are at most MaxToolRounds+1.
	// Zero means the default of 2; use a negative value for no tool rounds.
	MaxToolRounds int

	// Registered is the Genkit tool list advertised to the model
	// (from Register).
	Registered []ai.Tool

	// Resilience configuration (zero values use defaults).
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimiter          *rate.Limiter
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Tools == nil {
		return errors.New("tools are required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Registered) == 0 {
		return errors.New("at least one registered tool is required")
	}
	return nil
}

// Expert answers documentation questions through the retrieval tools.
//
// Expert is stateless across turns: all per-turn state lives on the stack,
// so distinct turns may run concurrently. History is deep-copied before use
// because Genkit mutates message content in place during rendering.
type Expert struct {
	g             *genkit.Genkit
	tools         *Tools
	logger        *slog.Logger
	modelName     string
	maxToolRounds int

	toolRefs  []ai.ToolRef
	toolNames string

	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter
}

// New creates an Expert with the given configuration.
func New(cfg Config) (*Expert, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxToolRounds := cfg.MaxToolRounds
	if maxToolRounds == 0 {
		maxToolRounds = 2
	}
	if maxToolRounds < 0 {
		maxToolRounds = 0
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	// Cache tool refs and names at construction.
	toolRefs := make([]ai.ToolRef, len(cfg.Registered))
	names := make([]string, len(cfg.Registered))
	for i, t := range cfg.Registered {
		toolRefs[i] = t
		names[i] = t.Name()
	}

	e := &Expert{
		g:             cfg.Genkit,
		tools:         cfg.Tools,
		logger:        cfg.Logger,
		modelName:     cfg.ModelName,
		maxToolRounds: maxToolRounds,

		toolRefs:  toolRefs,
		toolNames: strings.Join(names, ", "),

		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,
	}

	e.logger.Info("documentation expert initialized",
		"tools", e.toolNames,
		"maxToolRounds", e.maxToolRounds,
	)

	return e, nil
}

// Ask runs one question through the bounded tool-calling loop.
//
// history is read-only: it is deep-copied before the loop and never
// mutated. On context cancellation the partial turn is discarded and the
// context error returned; nothing is handed back for persistence.
func (e *Expert) Ask(ctx context.Context, question string, history []*ai.Message) (*Response, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", ErrExecutionFailed)
	}

	userMsg := ai.NewUserMessage(ai.NewTextPart(question))

	// Deep copy: Genkit's renderMessages modifies message content in
	// place, so sharing history across concurrent turns would race.
	msgs := deepCopyMessages(history)
	msgs = append(msgs, userMsg)

	var toolCalls []string

	for round := 0; ; round++ {
		resp, err := e.generate(ctx, msgs)
		if err != nil {
			return nil, err
		}

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			answer := strings.TrimSpace(resp.Text())
			if answer == "" {
				e.logger.Warn("model returned empty response with no tool requests")
				answer = fallbackAnswer
			}
			return e.finish(question, answer, toolCalls, false), nil
		}

		if round >= e.maxToolRounds {
			e.logger.Warn(exhaustedNote, "rounds", round, "pending_requests", len(requests))
			answer := strings.TrimSpace(resp.Text())
			if answer == "" {
				answer = fallbackAnswer
			}
			return e.finish(question, answer, toolCalls, true), nil
		}

		// Append the model's message first so tool responses follow their
		// requests in the transcript.
		msgs = append(msgs, resp.Message)

		// Tools run sequentially within a turn; each response carries the
		// request's Ref for correlation.
		for _, tr := range requests {
			output, err := e.dispatch(ctx, tr)
			if err != nil {
				return nil, err
			}
			toolCalls = append(toolCalls, tr.Name)
			msgs = append(msgs, &ai.Message{
				Role: ai.RoleTool,
				Content: []*ai.Part{ai.NewToolResponsePart(&ai.ToolResponse{
					Name:   tr.Name,
					Ref:    tr.Ref,
					Output: output,
				})},
			})
		}
	}
}

// finish assembles the Response for a completed turn.
func (e *Expert) finish(question, answer string, toolCalls []string, exhausted bool) *Response {
	return &Response{
		Answer: answer,
		NewMessages: []*ai.Message{
			ai.NewUserMessage(ai.NewTextPart(question)),
			ai.NewModelMessage(ai.NewTextPart(answer)),
		},
		ToolCalls: toolCalls,
		Exhausted: exhausted,
	}
}

// generate performs one model call through the circuit breaker and retry
// wrapper. Tool requests are returned to the loop instead of being run by
// Genkit.
func (e *Expert) generate(ctx context.Context, msgs []*ai.Message) (*ai.ModelResponse, error) {
	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt),
		ai.WithMessages(msgs...),
		ai.WithTools(e.toolRefs...),
		ai.WithReturnToolRequests(true),
	}
	if e.modelName != "" {
		opts = append(opts, ai.WithModelName(e.modelName))
	}

	if err := e.circuitBreaker.Allow(); err != nil {
		e.logger.Warn("circuit breaker is open, rejecting request",
			"state", e.circuitBreaker.State().String())
		return nil, fmt.Errorf("service unavailable: %w", err)
	}

	resp, err := e.executeWithRetry(ctx, opts)
	if err != nil {
		e.circuitBreaker.Failure()
		return nil, err
	}

	e.circuitBreaker.Success()
	return resp, nil
}

// dispatch routes one tool request to its handler.
//
// The switch is closed: the three documentation tools are the entire
// surface. An unknown name (hallucinated by the model) produces an error
// payload the model can read, not a crash. Only context cancellation
// returns a non-nil error.
func (e *Expert) dispatch(ctx context.Context, tr *ai.ToolRequest) (any, error) {
	switch tr.Name {
	case RetrieveDocumentationName:
		var in RetrieveInput
		if err := decodeInput(tr.Input, &in); err != nil {
			return toolError(tr.Name, err), nil
		}
		return e.tools.RetrieveRelevantDocumentation(ctx, in)

	case ListPagesName:
		return e.tools.ListDocumentationPages(ctx, ListPagesInput{})

	case GetPageContentName:
		var in GetPageInput
		if err := decodeInput(tr.Input, &in); err != nil {
			return toolError(tr.Name, err), nil
		}
		return e.tools.GetPageContent(ctx, in)

	default:
		e.logger.Warn("model requested unknown tool", "tool", tr.Name)
		return toolError(tr.Name, fmt.Errorf("unknown tool")), nil
	}
}

// decodeInput converts a tool request's loosely typed input into the typed
// input struct via a JSON round-trip.
func decodeInput(input any, dest any) error {
	if input == nil {
		return nil
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding tool input: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decoding tool input: %w", err)
	}
	return nil
}

// toolError builds the error payload returned to the model for a failed or
// unknown tool request.
func toolError(name string, err error) map[string]any {
	return map[string]any{
		"error": fmt.Sprintf("tool %s failed: %v", name, err),
	}
}

// deepCopyMessages creates independent copies of Message and Part structs.
//
// Genkit's renderMessages() modifies msg.Content in place, which races when
// concurrent turns share message objects. Tested against
// github.com/firebase/genkit/go v1.4.0.
func deepCopyMessages(msgs []*ai.Message) []*ai.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]*ai.Message, len(msgs))
	for i, msg := range msgs {
		parts := make([]*ai.Part, len(msg.Content))
		for j, part := range msg.Content {
			parts[j] = deepCopyPart(part)
		}
		copied[i] = &ai.Message{
			Role:     msg.Role,
			Content:  parts,
			Metadata: shallowCopyMap(msg.Metadata),
		}
	}
	return copied
}

// deepCopyPart copies an ai.Part. ToolRequest.Input and ToolResponse.Output
// are reference-copied: Genkit only mutates the Content slice, not tool
// payloads.
func deepCopyPart(p *ai.Part) *ai.Part {
	if p == nil {
		return nil
	}
	cp := &ai.Part{
		Kind:        p.Kind,
		ContentType: p.ContentType,
		Text:        p.Text,
		Custom:      shallowCopyMap(p.Custom),
		Metadata:    shallowCopyMap(p.Metadata),
	}
	if p.ToolRequest != nil {
		cp.ToolRequest = &ai.ToolRequest{
			Input: p.ToolRequest.Input,
			Name:  p.ToolRequest.Name,
			Ref:   p.ToolRequest.Ref,
		}
	}
	if p.ToolResponse != nil {
		cp.ToolResponse = &ai.ToolResponse{
			Name:   p.ToolResponse.Name,
			Output: p.ToolResponse.Output,
			Ref:    p.ToolResponse.Ref,
		}
	}
	return cp
}

// shallowCopyMap copies map keys and values but not nested structures.
func shallowCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
