package generation

import (
	"context"
	"fmt"
	"strings"
)

// EchoProvider returns a deterministic body derived from the prompt. It backs LLM_PROVIDER=echo for local runs.
type EchoProvider struct{}

func (EchoProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	first := strings.TrimSpace(strings.SplitN(prompt, "\n", 2)[0])
	return fmt.Sprintf("Draft generated for: %s", first), nil
}
