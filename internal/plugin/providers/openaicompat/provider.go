package openaicompat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hearthfin/hearth/internal/core/domain"
	"github.com/hearthfin/hearth/internal/infrastructure/resilience"
)

// Name is the registry key. The provider speaks the chat-completions dialect,
// so it works against OpenAI, OpenRouter, Groq and local gateways alike.
const Name = "openai_compat"

type Provider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
	limiter    *rate.Limiter
}

type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Executor          *resilience.Executor
}

func New(baseURL, apiKey, model string, opts Options) *Provider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) CategorizeBatch(ctx context.Context, batch []domain.Transaction) ([]domain.CategorySuggestion, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	raw, err := p.complete(ctx, "categorize_batch", buildBatchPrompt(batch))
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderFailed, "categorize batch", err)
	}
	suggestions, err := decodeSuggestions(raw, batch)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderFailed, "categorize batch", err)
	}
	return suggestions, nil
}

func (p *Provider) AnswerQuery(ctx context.Context, question string, fc *domain.FinancialContext) (string, error) {
	prompt, err := buildQueryPrompt(question, fc)
	if err != nil {
		return "", domain.WrapError(domain.ErrProviderFailed, "answer query", err)
	}
	answer, err := p.complete(ctx, "answer_query", prompt)
	if err != nil {
		return "", domain.WrapError(domain.ErrProviderFailed, "answer query", err)
	}
	return strings.TrimSpace(answer), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *Provider) complete(ctx context.Context, operation, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	request := chatRequest{
		Model:    p.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}

	var response chatResponse
	call := func(callCtx context.Context) error {
		return p.postJSON(callCtx, "/chat/completions", request, &response, operation)
	}

	var err error
	if p.executor != nil {
		err = p.executor.Execute(ctx, "provider."+operation, call, classifyProviderError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded(operation, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("%s: response has no choices", operation)
	}
	return response.Choices[0].Message.Content, nil
}
