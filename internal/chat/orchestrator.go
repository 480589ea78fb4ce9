package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carewellhealth/patient-portal/internal/guard"
	"github.com/carewellhealth/patient-portal/internal/identity"
	"github.com/carewellhealth/patient-portal/internal/observability/metrics"
	"github.com/carewellhealth/patient-portal/pkg/logging"
)

var chatTracer = otel.Tracer("portal.internal.chat")

const (
	chatTemperature = 0.4

	// queryDatabaseToolName is the only tool the model may call.
	queryDatabaseToolName = "queryDatabase"

	// streamChunkRunes sizes the chunks the final answer is flushed in.
	streamChunkRunes = 24
)

// MsgToolBudgetExhausted is streamed when the model keeps requesting tool
// calls past the step budget and never produces an answer.
const MsgToolBudgetExhausted = "I wasn't able to complete that request."

// ErrNoUserMessage is returned when the request carries no user turn to
// respond to.
var ErrNoUserMessage = errors.New("chat: request contains no user message")

var queryDatabaseTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        queryDatabaseToolName,
		Description: "Execute a raw SQL query to get patient information",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "The SQL query to execute"}
			},
			"required": ["query"],
			"additionalProperties": false
		}`),
	},
}

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type promptPipeline interface {
	Inspect(ctx context.Context, patient *identity.Patient, transcript []guard.Message, message string) guard.Decision
}

type toolRunner interface {
	Run(ctx context.Context, patient *identity.Patient, query string) ToolResult
}

type transcriptLog interface {
	Append(ctx context.Context, sessionID string, turns ...guard.Message) error
	History(ctx context.Context, sessionID string) ([]guard.Message, error)
}

// Streamer receives the assistant's answer incrementally.
type Streamer interface {
	Send(chunk string) error
}

// AnswerDecorator post-processes the final answer before it is streamed,
// e.g. to append a compliance disclaimer.
type AnswerDecorator interface {
	Decorate(answer string) string
}

// Orchestrator runs one chat turn end to end: guard inspection, the
// tool-calling completion loop, streaming the final answer, and transcript
// bookkeeping.
type Orchestrator struct {
	llm          chatCompleter
	pipeline     promptPipeline
	gate         toolRunner
	transcripts  transcriptLog
	model        string
	maxToolSteps int
	timeout      time.Duration
	decorator    AnswerDecorator
	metrics      *metrics.GuardMetrics
	logger       *logging.Logger
}

// NewOrchestrator wires the chat turn dependencies. transcripts and metrics
// may be nil.
func NewOrchestrator(llm chatCompleter, pipeline promptPipeline, gate toolRunner, transcripts transcriptLog, model string, maxToolSteps int, timeout time.Duration, m *metrics.GuardMetrics, logger *logging.Logger) *Orchestrator {
	if llm == nil {
		panic("chat: completion client cannot be nil")
	}
	if pipeline == nil {
		panic("chat: guard pipeline cannot be nil")
	}
	if gate == nil {
		panic("chat: query gate cannot be nil")
	}
	if model == "" {
		panic("chat: model cannot be empty")
	}
	if maxToolSteps <= 0 {
		maxToolSteps = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		llm:          llm,
		pipeline:     pipeline,
		gate:         gate,
		transcripts:  transcripts,
		model:        model,
		maxToolSteps: maxToolSteps,
		timeout:      timeout,
		metrics:      m,
		logger:       logger,
	}
}

// WithDecorator installs a post-processor for final answers. Veto replies are
// never decorated.
func (o *Orchestrator) WithDecorator(d AnswerDecorator) *Orchestrator {
	o.decorator = d
	return o
}

// Respond handles one inbound chat request. clientMessages is the
// client-supplied conversation; system turns in it are discarded and the
// server-built system prompt takes their place. patient may be nil when the
// caller has no session.
func (o *Orchestrator) Respond(ctx context.Context, patient *identity.Patient, sessionID string, clientMessages []guard.Message, stream Streamer) error {
	ctx, span := chatTracer.Start(ctx, "chat.respond")
	defer span.End()

	sanitized := sanitizeMessages(clientMessages)
	if len(sanitized) == 0 || sanitized[len(sanitized)-1].Role != guard.RoleUser {
		return ErrNoUserMessage
	}
	prompt := sanitized[len(sanitized)-1].Content

	decision := o.pipeline.Inspect(ctx, patient, o.validationHistory(ctx, sessionID, sanitized), prompt)
	if !decision.Allowed {
		span.SetAttributes(attribute.String("portal.chat.veto_stage", string(decision.Stage)))
		o.metrics.ObserveChatTurn("blocked")
		if err := stream.Send(decision.Reply); err != nil {
			return fmt.Errorf("chat: failed to stream veto reply: %w", err)
		}
		o.appendTranscript(ctx, sessionID, prompt, decision.Reply)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	conversation := make([]openai.ChatCompletionMessage, 0, len(sanitized)+1)
	conversation = append(conversation, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: BuildSystemPrompt(patient),
	})
	for _, msg := range sanitized {
		conversation = append(conversation, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	var final string
	toolSteps := 0
	for {
		req := openai.ChatCompletionRequest{
			Model:       o.model,
			Temperature: chatTemperature,
			Messages:    conversation,
		}
		// Withholding the tool on the last step forces the model to answer
		// from what it has.
		if toolSteps < o.maxToolSteps {
			req.Tools = []openai.Tool{queryDatabaseTool}
		}

		resp, err := o.llm.CreateChatCompletion(ctx, req)
		if err != nil {
			o.metrics.ObserveChatTurn("error")
			return fmt.Errorf("chat: completion request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			o.metrics.ObserveChatTurn("error")
			return errors.New("chat: completion response contained no choices")
		}

		choice := resp.Choices[0].Message
		if len(choice.ToolCalls) == 0 {
			final = choice.Content
			break
		}
		if toolSteps >= o.maxToolSteps {
			final = MsgToolBudgetExhausted
			break
		}
		toolSteps++

		conversation = append(conversation, choice)
		for _, call := range choice.ToolCalls {
			conversation = append(conversation, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    o.runTool(ctx, patient, call),
			})
		}
	}

	if o.decorator != nil {
		final = o.decorator.Decorate(final)
	}

	span.SetAttributes(attribute.Int("portal.chat.tool_steps", toolSteps))
	if err := streamInChunks(stream, final); err != nil {
		o.metrics.ObserveChatTurn("error")
		return fmt.Errorf("chat: failed to stream answer: %w", err)
	}
	o.metrics.ObserveChatTurn("streamed")
	o.appendTranscript(ctx, sessionID, prompt, final)
	return nil
}

// validationHistory prefers the server-side transcript over the
// client-supplied one; the client copy is tamperable.
func (o *Orchestrator) validationHistory(ctx context.Context, sessionID string, sanitized []guard.Message) []guard.Message {
	if o.transcripts == nil || sessionID == "" {
		return sanitized[:len(sanitized)-1]
	}
	stored, err := o.transcripts.History(ctx, sessionID)
	if err != nil {
		o.logger.Warn("falling back to client transcript", "error", err)
		return sanitized[:len(sanitized)-1]
	}
	return stored
}

func (o *Orchestrator) runTool(ctx context.Context, patient *identity.Patient, call openai.ToolCall) string {
	if call.Function.Name != queryDatabaseToolName {
		raw, _ := json.Marshal(map[string]string{"error": fmt.Sprintf("unknown tool %q", call.Function.Name)})
		return string(raw)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		raw, _ := json.Marshal(map[string]string{"error": "malformed tool arguments"})
		return string(raw)
	}
	result := o.gate.Run(ctx, patient, args.Query)
	raw, err := json.Marshal(result)
	if err != nil {
		o.logger.Error("failed to encode tool result", "error", err)
		raw, _ = json.Marshal(map[string]string{"error": "failed to encode result"})
	}
	return string(raw)
}

func (o *Orchestrator) appendTranscript(ctx context.Context, sessionID, prompt, reply string) {
	if o.transcripts == nil || sessionID == "" {
		return
	}
	err := o.transcripts.Append(ctx, sessionID,
		guard.Message{Role: guard.RoleUser, Content: prompt},
		guard.Message{Role: guard.RoleAssistant, Content: reply},
	)
	if err != nil {
		o.logger.Error("failed to persist transcript", "error", err)
	}
}

// sanitizeMessages drops everything except user and assistant turns, in
// particular any client-injected system prompt.
func sanitizeMessages(messages []guard.Message) []guard.Message {
	out := make([]guard.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == guard.RoleUser || msg.Role == guard.RoleAssistant {
			out = append(out, msg)
		}
	}
	return out
}

func streamInChunks(stream Streamer, text string) error {
	runes := []rune(text)
	for start := 0; start < len(runes); start += streamChunkRunes {
		end := start + streamChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		if err := stream.Send(string(runes[start:end])); err != nil {
			return err
		}
	}
	return nil
}
