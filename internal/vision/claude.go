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

const anthropicVersion = "2023-06-01"

// claudeClient speaks the Anthropic messages shape: x-api-key auth, base64
// image source blocks, content returned as a block list.
type claudeClient struct {
	cfg        config.APIConfig
	httpClient *http.Client
}

func (c *claudeClient) Name() string { return "api:claude" }

func (c *claudeClient) Analyze(ctx context.Context, imageB64, prompt string) (string, error) {
	content := []map[string]any{
		{"type": "image", "source": map[string]string{
			"type":       "base64",
			"media_type": "image/jpeg",
			"data":       imageB64,
		}},
		{"type": "text", "text": prompt},
	}
	return c.complete(ctx, "", []map[string]any{{"role": "user", "content": content}})
}

func (c *claudeClient) Chat(ctx context.Context, contextText, question string) (string, error) {
	return c.complete(ctx, contextText, []map[string]any{
		{"role": "user", "content": question},
	})
}

func (c *claudeClient) complete(ctx context.Context, system string, messages []map[string]any) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", &Error{Kind: KindUnauthorized, Detail: "missing api key"}
	}

	body := map[string]any{
		"model":      c.cfg.Model,
		"messages":   messages,
		"max_tokens": 1024,
	}
	if system != "" {
		body["system"] = system
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(strings.TrimSpace(c.cfg.Endpoint), "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var out strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return text, nil
}
