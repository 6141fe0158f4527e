package llm

import (
	"context"
	"errors"
	"fmt"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/prompts"
	"golang.org/x/time/rate"
	"time"
)

// Model is an opaque text completion service.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// The prompt is rendered by the caller, the chain only forwards it.
var passthrough = prompts.NewPromptTemplate("{{.Prompt}}", []string{"Prompt"})

type LangChain struct {
	chain chains.Chain
}

// NewOpenAI builds a model backed by langchaingo's OpenAI client. The API key is
// read from OPENAI_API_KEY.
func NewOpenAI() (*LangChain, error) {
	llm, err := openai.New()
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return &LangChain{chain: chains.NewLLMChain(llm, passthrough)}, nil
}

func (l *LangChain) Complete(ctx context.Context, prompt string) (string, error) {
	completion, err := chains.Call(ctx, l.chain, map[string]any{"Prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("call: %w", err)
	}
	text, ok := completion["text"].(string)
	if !ok {
		return "", errors.New("completion has no text output")
	}
	return text, nil
}

// Limited bounds how often and how long the wrapped model is called.
type Limited struct {
	model   Model
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLimited allows rps calls per second with the given burst; rps <= 0 disables
// the rate limit. A zero timeout leaves the caller's deadline alone.
func NewLimited(model Model, rps float64, burst int, timeout time.Duration) *Limited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{model: model, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

func (l *Limited) Complete(ctx context.Context, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.model.Complete(ctx, prompt)
}
