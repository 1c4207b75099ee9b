package agent

import (
	"context"

	"github.com/openai/openai-go/v2/shared"
)

// Tool is one function the assistant may call during a turn.
//
// Execute returns tool output as text. Provider-level failures that the agent
// should see (bad key, malformed arguments) are reported as output text, not
// errors; a non-nil error aborts the whole turn.
type Tool struct {
	Name        string
	Description string
	Parameters  shared.FunctionParameters
	Execute     func(ctx context.Context, arguments string) (string, error)
}
