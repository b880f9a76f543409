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

// ollamaClient speaks the local Ollama generate API. No key, different
// request shape: images ride alongside the prompt as raw base64.
type ollamaClient struct {
	cfg        config.OllamaConfig
	httpClient *http.Client
}

func (c *ollamaClient) Name() string { return "ollama" }

func (c *ollamaClient) Analyze(ctx context.Context, imageB64, prompt string) (string, error) {
	return c.generate(ctx, prompt, []string{imageB64})
}

func (c *ollamaClient) Chat(ctx context.Context, contextText, question string) (string, error) {
	prompt := question
	if contextText != "" {
		prompt = contextText + "\n\n" + question
	}
	return c.generate(ctx, prompt, nil)
}

func (c *ollamaClient) generate(ctx context.Context, prompt string, images []string) (string, error) {
	body := map[string]any{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
	}
	if len(images) > 0 {
		body["images"] = images
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(strings.TrimSpace(c.cfg.Endpoint), "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
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
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := strings.TrimSpace(decoded.Response)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return text, nil
}
