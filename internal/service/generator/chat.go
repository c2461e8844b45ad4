package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ifuryst/inkwell/internal/config"
)

const defaultSystemPrompt = "You are an experienced blog writer. You write original, well structured " +
	"articles in HTML using <h2>, <p>, <ul> and <li> tags only. " +
	`Reply with a JSON object {"title": string, "body": string, "excerpt": string}.`

// ChatClient implements ContentGenerator backed by a chat completions API.
type ChatClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ContentGenerator = (*ChatClient)(nil)

// NewChatClient builds a client from configuration.
func NewChatClient(cfg config.GeneratorConfig) *ChatClient {
	return &ChatClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: config.Duration(cfg.Timeout, 120*time.Second),
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateContent asks the model for one article.
func (c *ChatClient) GenerateContent(ctx context.Context, req Request) (*Content, error) {
	if c == nil {
		return nil, fmt.Errorf("chat client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, ErrMisconfigured
	}
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: BuildPrompt(req)},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices")
	}

	return parseContent(decoded.Choices[0].Message.Content, req.Topic)
}

// BuildPrompt renders the user message for req.
func BuildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a blog article about: %s\n", strings.TrimSpace(req.Topic))
	if req.Description != "" {
		fmt.Fprintf(&b, "Details: %s\n", req.Description)
	}
	if req.ArticleType != "" {
		fmt.Fprintf(&b, "Article type: %s\n", req.ArticleType)
	}
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords to cover: %s\n", strings.Join(req.Keywords, ", "))
	}
	if req.Style != "" {
		fmt.Fprintf(&b, "Tone and style: %s\n", req.Style)
	}
	if req.MinWords > 0 || req.MaxWords > 0 {
		fmt.Fprintf(&b, "Length: between %d and %d words\n", req.MinWords, req.MaxWords)
	}
	return b.String()
}

func parseContent(raw, topic string) (*Content, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var content Content
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &content); err != nil {
		return nil, fmt.Errorf("decode article json: %w", err)
	}
	if strings.TrimSpace(content.Body) == "" {
		return nil, fmt.Errorf("generated article has an empty body")
	}
	if strings.TrimSpace(content.Title) == "" {
		content.Title = topic
	}
	return &content, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}
