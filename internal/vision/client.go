// Package vision is the unified model-invocation layer: one Analyzer
// implementation per backend wire shape, selected by configuration at
// construction time. The capture loop and the connectivity self-test share
// the same code path.
package vision

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/retracehq/retrace/internal/config"
)

const (
	callTimeout = 60 * time.Second
	maxAttempts = 3
)

// Analyzer issues vision and chat requests against one model backend.
type Analyzer interface {
	// Name identifies the backend, e.g. "api:openai" or "ollama".
	Name() string
	// Analyze sends one frame (base64 JPEG) plus a prompt and returns the
	// model's raw text output.
	Analyze(ctx context.Context, imageB64, prompt string) (string, error)
	// Chat sends a text-only completion request.
	Chat(ctx context.Context, contextText, question string) (string, error)
}

// New builds the Analyzer selected by cfg, wrapped with bounded retry and
// exchange logging. log may be nil.
func New(cfg config.ModelConfig, log *ExchangeLog) (Analyzer, error) {
	httpClient := &http.Client{Timeout: callTimeout}

	var inner Analyzer
	switch cfg.Provider {
	case "ollama":
		inner = &ollamaClient{cfg: cfg.Ollama, httpClient: httpClient}
	case "api", "":
		switch cfg.API.Type {
		case "claude":
			inner = &claudeClient{cfg: cfg.API, httpClient: httpClient}
		case "openai", "":
			inner = &openAIClient{cfg: cfg.API, httpClient: httpClient}
		case "custom":
			inner = &openAIClient{cfg: cfg.API, httpClient: httpClient, rawEndpoint: true}
		default:
			return nil, fmt.Errorf("unknown api type %q", cfg.API.Type)
		}
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}

	return &retryingAnalyzer{inner: inner, log: log}, nil
}

// retryingAnalyzer retries transient failures with exponential backoff, up
// to maxAttempts total tries. Permanent failures surface immediately.
type retryingAnalyzer struct {
	inner Analyzer
	log   *ExchangeLog
}

func (r *retryingAnalyzer) Name() string { return r.inner.Name() }

func (r *retryingAnalyzer) Analyze(ctx context.Context, imageB64, prompt string) (string, error) {
	return r.call(ctx, "analyze", func(ctx context.Context) (string, error) {
		return r.inner.Analyze(ctx, imageB64, prompt)
	})
}

func (r *retryingAnalyzer) Chat(ctx context.Context, contextText, question string) (string, error) {
	return r.call(ctx, "chat", func(ctx context.Context) (string, error) {
		return r.inner.Chat(ctx, contextText, question)
	})
}

func (r *retryingAnalyzer) call(ctx context.Context, op string, fn func(context.Context) (string, error)) (string, error) {
	started := time.Now()

	result, err := backoff.Retry(ctx, func() (string, error) {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		verr := classifyTransport(err)
		if !verr.Transient() {
			return "", backoff.Permanent(verr)
		}
		return "", verr
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxAttempts),
	)

	r.record(op, started, err)
	return result, err
}

func (r *retryingAnalyzer) record(op string, started time.Time, err error) {
	if r.log == nil {
		return
	}
	entry := Exchange{
		Timestamp: started,
		Provider:  r.inner.Name(),
		Op:        op,
		LatencyMS: time.Since(started).Milliseconds(),
	}
	if err != nil {
		verr := classifyTransport(err)
		entry.ErrorKind = string(verr.Kind)
		entry.Status = verr.Status
	}
	r.log.Record(entry)
}
