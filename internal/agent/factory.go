package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/tezansahu/career-mentor-chat/internal/domain"
	"github.com/tezansahu/career-mentor-chat/internal/search"
)

// TerminationToken is the sentinel the assistant must end its final reply
// with; its presence in agent output signals end-of-turn.
const TerminationToken = "TERMINATE"

// AgentName is the assistant's fixed identity.
const AgentName = "CareerMentorAgent"

const agentDescription = "An agent that provides career advice and mentorship."

const systemPrompt = "You are a Career Mentor Agent with deep expertise in career development, " +
	"professional growth, and industry trends. Your goal is to provide thoughtful, strategic, " +
	"and actionable advice to help users navigate career challenges, make informed decisions, " +
	"and achieve long-term success. Use the tools at your disposal whenever required. " +
	"Offer clear, empathetic guidance based on your knowledge, considering the user's background " +
	"and goals. If the question is outside the domain of career development, politely redirect " +
	"the user to a more appropriate topic. You must end with the word 'TERMINATE' only at the " +
	"end of your final response."

// Options carries factory wiring that is fixed per deployment rather than per
// session: endpoint URLs and an optional HTTP client override for tests.
type Options struct {
	InferenceURL string
	SearchURL    string
	HTTPClient   *http.Client
}

// BuildTeam constructs the single career-mentor assistant from a session's
// configuration and wraps it in a round-robin team of one with a sentinel
// termination condition. The web-search tool is attached only when a search
// key is configured.
func BuildTeam(cfg domain.SessionConfig, opts Options) *Team {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.Credential),
	}
	if opts.InferenceURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.InferenceURL))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	client := openai.NewClient(reqOpts...)

	info := ModelInfo{
		JSONOutput:      true,
		FunctionCalling: true,
		Vision:          true,
		Family:          "unknown",
	}

	var tools []Tool
	if cfg.SearchAPIKey != "" {
		searchOpts := []search.Option{search.WithEndpoint(opts.SearchURL)}
		if opts.HTTPClient != nil {
			searchOpts = append(searchOpts, search.WithHTTPClient(opts.HTTPClient))
		}
		tools = append(tools, WebSearchTool(search.NewClient(cfg.SearchAPIKey, searchOpts...)))
	}

	assistant := NewAssistant(AgentName, agentDescription, client, cfg.Model, info, systemPrompt, tools)
	return NewRoundRobinTeam([]*Assistant{assistant}, NewTextMentionTermination(TerminationToken))
}

// WebSearchTool adapts a search client into a callable agent tool.
func WebSearchTool(c *search.Client) Tool {
	return Tool{
		Name:        "web_search",
		Description: "Perform a web search and return the results.",
		Parameters: shared.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, arguments string) (string, error) {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal([]byte(arguments), &args); err != nil {
				return fmt.Sprintf("Error: invalid arguments: %v", err), nil
			}
			if strings.TrimSpace(args.Query) == "" {
				return "Error: empty query", nil
			}
			return c.Search(ctx, args.Query)
		},
	}
}
