package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/retracehq/retrace/internal/config"
)

// openAIClient speaks the OpenAI chat-completions shape. It also serves the
// "custom" API type, which posts the same body to the configured endpoint
// verbatim instead of appending /chat/completions.
type openAIClient struct {
	cfg         config.APIConfig
	httpClient  *http.Client
	rawEndpoint bool
}

func (c *openAIClient) Name() string {
	if c.rawEndpoint {
		return "api:custom"
	}
	return "api:openai"
}

func (c *openAIClient) Analyze(ctx context.Context, imageB64, prompt string) (string, error) {
	content := []map[string]any{
		{"type": "text", "text": prompt},
		{"type": "image_url", "image_url": map[string]string{
			"url": "data:image/jpeg;base64," + imageB64,
		}},
	}
	return c.complete(ctx, []map[string]any{{"role": "user", "content": content}})
}

func (c *openAIClient) Chat(ctx context.Context, contextText, question string) (string, error) {
	return c.complete(ctx, []map[string]any{
		{"role": "system", "content": contextText},
		{"role": "user", "content": question},
	})
}

func (c *openAIClient) complete(ctx context.Context, messages []map[string]any) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", &Error{Kind: KindUnauthorized, Detail: "missing api key"}
	}

	payload, err := json.Marshal(map[string]any{
		"model":      c.cfg.Model,
		"messages":   messages,
		"max_tokens": 1024,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(strings.TrimSpace(c.cfg.Endpoint), "/")
	if !c.rawEndpoint {
		url += "/chat/completions"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return content, nil
}
