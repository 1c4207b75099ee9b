package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
)

var errNoCompletionChoices = errors.New("model returned no completion choices")

// maxToolRounds bounds consecutive tool-call exchanges within one turn so a
// model that keeps requesting tools cannot spin forever.
const maxToolRounds = 8

// ModelInfo carries the capability flags the assistant is constructed with.
type ModelInfo struct {
	JSONOutput      bool
	FunctionCalling bool
	Vision          bool
	Family          string
}

// Assistant is a single LLM-backed agent with its own conversation memory.
// Memory persists across turns until Reset is called.
type Assistant struct {
	name         string
	description  string
	systemPrompt string
	model        string
	info         ModelInfo
	client       openai.Client
	tools        []Tool
	toolsByName  map[string]Tool

	mu     sync.Mutex
	memory []openai.ChatCompletionMessageParamUnion
}

// NewAssistant constructs an assistant bound to a completion client, a fixed
// system prompt and an optional tool set.
func NewAssistant(name, description string, client openai.Client, model string, info ModelInfo, systemPrompt string, tools []Tool) *Assistant {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &Assistant{
		name:         name,
		description:  description,
		systemPrompt: systemPrompt,
		model:        model,
		info:         info,
		client:       client,
		tools:        tools,
		toolsByName:  byName,
	}
}

// Name returns the agent's fixed identity.
func (a *Assistant) Name() string { return a.name }

// Description returns the agent's fixed description.
func (a *Assistant) Description() string { return a.description }

// Reset clears the assistant's conversation memory.
func (a *Assistant) Reset() {
	a.mu.Lock()
	a.memory = nil
	a.mu.Unlock()
}

// Stream runs one turn of the assistant and yields events as they are
// produced: a tool-call request per model round that asks for tools, then one
// text message and a final response wrapping it. task may be empty when the
// enclosing team re-dispatches the agent without new user input.
func (a *Assistant) Stream(ctx context.Context, task string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		a.mu.Lock()
		defer a.mu.Unlock()

		if task != "" {
			a.memory = append(a.memory, openai.UserMessage(task))
		}

		for round := 0; round < maxToolRounds; round++ {
			completion, err := a.client.Chat.Completions.New(ctx, a.buildParams())
			if err != nil {
				yield(Event{}, fmt.Errorf("chat completion: %w", err))
				return
			}
			if len(completion.Choices) == 0 {
				yield(Event{}, errNoCompletionChoices)
				return
			}
			msg := completion.Choices[0].Message

			if len(msg.ToolCalls) > 0 {
				calls := make([]ToolCall, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					calls = append(calls, ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
				}
				if !yield(Event{Kind: EventToolCallRequest, Source: a.name, Calls: calls}, nil) {
					return
				}

				a.memory = append(a.memory, msg.ToParam())
				for _, tc := range msg.ToolCalls {
					output, err := a.invokeTool(ctx, tc.Function.Name, tc.Function.Arguments)
					if err != nil {
						yield(Event{}, fmt.Errorf("tool %s: %w", tc.Function.Name, err))
						return
					}
					a.memory = append(a.memory, openai.ToolMessage(output, tc.ID))
				}
				continue
			}

			a.memory = append(a.memory, openai.AssistantMessage(msg.Content))
			if !yield(Event{Kind: EventTextMessage, Source: a.name, Content: msg.Content}, nil) {
				return
			}
			yield(Event{Kind: EventFinalResponse, Source: a.name, Content: msg.Content}, nil)
			return
		}

		yield(Event{}, fmt.Errorf("assistant %s exceeded %d tool rounds in one turn", a.name, maxToolRounds))
	}
}

func (a *Assistant) buildParams() openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(a.memory)+1)
	messages = append(messages, openai.SystemMessage(a.systemPrompt))
	messages = append(messages, a.memory...)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
	}
	if a.info.FunctionCalling {
		for _, t := range a.tools {
			params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			}))
		}
	}
	return params
}

// invokeTool dispatches one requested call. Unknown tool names are reported
// back to the model as tool output so it can recover within the turn.
func (a *Assistant) invokeTool(ctx context.Context, name, arguments string) (string, error) {
	tool, ok := a.toolsByName[name]
	if !ok {
		slog.Warn("Model requested unknown tool", "agent", a.name, "tool", name)
		return fmt.Sprintf("Error: unknown tool %q", name), nil
	}
	return tool.Execute(ctx, arguments)
}
