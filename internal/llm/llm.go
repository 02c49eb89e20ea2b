// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm wraps chat-completion models behind a small interface with
// cost tiers, transient retries, and escalation to a stronger tier when a
// model returns unusable output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/pdiddy/research-agents/internal/fault"
	"github.com/pdiddy/research-agents/internal/httputil"
	"github.com/pdiddy/research-agents/internal/logging"
	"github.com/pdiddy/research-agents/internal/metrics"
	"github.com/pdiddy/research-agents/pkg/types"
)

// Tier is a model cost/quality class.
type Tier string

const (
	TierNano     Tier = "nano"
	TierDefault  Tier = "default"
	TierStandard Tier = "standard"
)

// Stronger returns the next tier up, or false at the top.
func (t Tier) Stronger() (Tier, bool) {
	switch t {
	case TierNano:
		return TierDefault, true
	case TierDefault:
		return TierStandard, true
	default:
		return t, false
	}
}

// Request is one chat completion.
type Request struct {
	Tier        Tier
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Client completes chat requests. Implementations return *fault.Error
// values so callers can tell transient from model-specific failures.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// OpenAIClient calls an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client  *openai.Client
	models  map[Tier]string
	timeout time.Duration
}

// NewOpenAIClient builds a client from cfg. Empty model names fall back to
// the default tier's model.
func NewOpenAIClient(cfg types.AIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{}

	def := cfg.DefaultModel
	if def == "" {
		def = "gpt-4.1-mini"
	}
	models := map[Tier]string{
		TierNano:     firstNonEmpty(cfg.NanoModel, def),
		TierDefault:  def,
		TierStandard: firstNonEmpty(cfg.StandardModel, def),
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(oc), models: models, timeout: timeout}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Model returns the model name for tier.
func (c *OpenAIClient) Model(t Tier) string {
	if m, ok := c.models[t]; ok {
		return m
	}
	return c.models[TierDefault]
}

// Complete sends one chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.Model(req.Tier),
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fault.Errorf(fault.ModelSpecific, "llm", "no choices in response")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", fault.Errorf(fault.ModelSpecific, "llm", "response blocked by content filter")
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fault.Errorf(fault.ModelSpecific, "llm", "empty completion")
	}
	return text, nil
}

// classify maps go-openai errors onto the fault taxonomy.
func classify(err error) error {
	if k := fault.KindOf(err); k == fault.Cancelled || k == fault.ProviderTransient {
		return fault.New(k, "llm", err)
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return fault.New(fault.ProviderTransient, "llm", err)
	}
	kind := fault.FromStatus(status)
	switch {
	case kind == fault.ProviderTransient:
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		kind = fault.ModelSpecific
	default:
		kind = fault.ProviderPermanent
	}
	return &fault.Error{Kind: kind, Op: "llm", Status: status, Err: err}
}

// Retrying wraps a Client with transient retries and one escalation to the
// next stronger tier on model-specific failures.
type Retrying struct {
	Client     Client
	MaxRetries int
	Logger     *zap.Logger
}

// NewRetrying wraps c. maxRetries <= 0 selects 3.
func NewRetrying(c Client, maxRetries int, logger *zap.Logger) *Retrying {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Retrying{Client: c, MaxRetries: maxRetries, Logger: logging.OrNop(logger)}
}

// Complete implements Client.
func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	out, err := r.completeTier(ctx, req)
	if err == nil || !fault.IsKind(err, fault.ModelSpecific) {
		return out, err
	}
	next, ok := req.Tier.Stronger()
	if !ok {
		return "", err
	}
	r.Logger.Warn("model-specific failure, escalating tier",
		zap.String("from", string(req.Tier)), zap.String("to", string(next)), zap.Error(err))
	req.Tier = next
	return r.completeTier(ctx, req)
}

func (r *Retrying) completeTier(ctx context.Context, req Request) (string, error) {
	tier := string(req.Tier)
	if tier == "" {
		tier = string(TierDefault)
	}
	var lastErr error
	for attempt := 0; attempt <= r.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := httputil.Sleep(ctx, httputil.Backoff(attempt-1)); err != nil {
				return "", fault.New(fault.Cancelled, "llm", err)
			}
		}
		out, err := r.Client.Complete(ctx, req)
		metrics.LLMCalls.WithLabelValues(tier, metrics.Status(err)).Inc()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", fault.New(fault.Cancelled, "llm", ctx.Err())
		}
		if !fault.Retryable(err) {
			return "", err
		}
		r.Logger.Debug("transient llm failure", zap.String("tier", tier), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return "", fmt.Errorf("after %d retries: %w", r.MaxRetries, lastErr)
}
