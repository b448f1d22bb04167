package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/haasonsaas/cortex/internal/config"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/usage"
)

// retry tuning: base 5s, factor 2, cap 120s, 5 attempts.
const (
	retryBase    = 5 * time.Second
	retryFactor  = 2.0
	retryCap     = 120 * time.Second
	retryMaxTry  = 5
)

// providerRateLimit is a conservative per-provider outbound request cap,
// independent of whatever rate limit the provider itself enforces — it
// exists so a tool-call-heavy step loop can't burst a provider's API faster
// than a single human operator's traffic ever would.
const providerRateLimit = 5 // requests/second, burst 5

// Client wraps a set of named Provider instances with the cross-cutting
// concerns every caller needs: exponential-backoff-with-jitter retry, a
// per-provider outbound rate limiter, one-time thinking-strip-and-retry when
// a provider rejects a stale thinking block, truncation detection, and
// cost/usage recording. Grounded on a retry loop otherwise duplicated
// across each provider's own Complete method — centralized here instead so
// Provider implementations stay a thin one-shot Chat call.
type Client struct {
	providers map[string]Provider
	limiters  map[string]*rate.Limiter
	tracker   *usage.Tracker
	metrics   *observability.Metrics
}

// NewClient constructs a Client with the given named providers (keyed by
// Provider.Name()) and a usage tracker to record cost against.
func NewClient(tracker *usage.Tracker, providers ...Provider) *Client {
	c := &Client{
		providers: make(map[string]Provider),
		limiters:  make(map[string]*rate.Limiter),
		tracker:   tracker,
	}
	for _, p := range providers {
		c.providers[p.Name()] = p
		c.limiters[p.Name()] = rate.NewLimiter(rate.Limit(providerRateLimit), providerRateLimit)
	}
	return c
}

// WithMetrics attaches m so subsequent Chat calls record request/cost
// metrics against it. Returns c for chaining at construction time.
func (c *Client) WithMetrics(m *observability.Metrics) *Client {
	c.metrics = m
	return c
}

// Profile names one of the runtime's three calling conventions: default,
// cheap, routing.
type Profile struct {
	Provider string
	Model    string
}

// NewClientFromConfig builds providers for every configured provider entry
// and wires them behind a Client, along with the resolved Default/Cheap/
// Routing profiles.
func NewClientFromConfig(cfg *config.LLMConfig, tracker *usage.Tracker) (*Client, Profile, Profile, Profile) {
	var providers []Provider
	if pc, ok := cfg.Providers["anthropic"]; ok || cfg.DefaultProvider == "anthropic" {
		providers = append(providers, NewAnthropicProvider(pc.APIKey, pc.BaseURL))
	}
	if pc, ok := cfg.Providers["openai"]; ok {
		providers = append(providers, NewOpenAIProvider(pc.APIKey, pc.BaseURL))
	}
	client := NewClient(tracker, providers...)
	def := Profile{Provider: cfg.Profiles.Default.Provider, Model: cfg.Profiles.Default.Model}
	cheap := Profile{Provider: cfg.Profiles.Cheap.Provider, Model: cfg.Profiles.Cheap.Model}
	routing := Profile{Provider: cfg.Profiles.Routing.Provider, Model: cfg.Profiles.Routing.Model}
	return client, def, cheap, routing
}

// Chat performs req against the named provider, retrying transient
// failures with exponential backoff and jitter, retrying once more with
// thinking disabled if the provider rejects a stale thinking block, and
// recording usage/cost against the tracker before returning.
func (c *Client) Chat(ctx context.Context, provider string, req ChatRequest) (*ChatResponse, error) {
	started := time.Now()
	p, ok := c.providers[provider]
	if !ok {
		return nil, &ProviderError{Provider: provider, Reason: ReasonInvalid, Cause: errUnknownProvider(provider)}
	}

	resp, err := c.chatWithRetry(ctx, provider, p, req)
	if err != nil && isThinkingOrderError(err) && req.EnableThinking {
		retryReq := req
		retryReq.EnableThinking = false
		resp, err = c.chatWithRetry(ctx, provider, p, retryReq)
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordLLMRequest(provider, req.Model, "error", time.Since(started).Seconds(), 0, 0)
		}
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.RecordLLMRequest(provider, req.Model, "success", time.Since(started).Seconds(),
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		c.metrics.RecordLLMCost(provider, req.Model, usage.Lookup(req.Model).Estimate(resp.Usage))
		c.metrics.RecordContextWindow(provider, req.Model, resp.Usage.PromptTokens+resp.Usage.CompletionTokens)
	}

	if c.tracker != nil {
		component := req.Component
		if component == "" {
			component = "agent"
		}
		_ = c.tracker.Record(ctx, req.JobID, req.ConversationID, provider, req.Model, component, resp.Usage)
	}
	return resp, nil
}

func (c *Client) chatWithRetry(ctx context.Context, providerName string, p Provider, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= retryMaxTry; attempt++ {
		if req.CancellationCheck != nil && req.CancellationCheck() {
			return nil, ErrJobCancelled
		}
		if lim := c.limiters[providerName]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := p.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if err == ErrJobCancelled {
			return nil, err
		}
		if !IsRetryable(err) || attempt == retryMaxTry {
			return nil, err
		}
		wait := backoffDelay(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if req.CancellationCheck != nil && req.CancellationCheck() {
			return nil, ErrJobCancelled
		}
	}
	return nil, lastErr
}

// backoffDelay computes base*factor^(attempt-1), capped, with +/-20% jitter.
func backoffDelay(attempt int) time.Duration {
	raw := float64(retryBase) * math.Pow(retryFactor, float64(attempt-1))
	if raw > float64(retryCap) {
		raw = float64(retryCap)
	}
	jitter := 0.8 + rand.Float64()*0.4
	return time.Duration(raw * jitter)
}

type errUnknownProviderT struct{ name string }

func (e errUnknownProviderT) Error() string { return "llm: unknown provider " + e.name }

func errUnknownProvider(name string) error { return errUnknownProviderT{name: name} }
