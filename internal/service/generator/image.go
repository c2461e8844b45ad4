package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ifuryst/inkwell/internal/config"
)

// ImageClient implements ImageGenerator backed by an images API.
type ImageClient struct {
	endpoint   string
	model      string
	apiKey     string
	size       string
	httpClient *http.Client
}

var _ ImageGenerator = (*ImageClient)(nil)

// NewImageClient builds a client from configuration.
func NewImageClient(cfg config.ImageConfig) *ImageClient {
	return &ImageClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		size:     cfg.Size,
		httpClient: &http.Client{
			Timeout: config.Duration(cfg.Timeout, 120*time.Second),
		},
	}
}

type imageResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateImage draws one image for prompt.
func (c *ImageClient) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	if c == nil {
		return nil, fmt.Errorf("image client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, ErrMisconfigured
	}

	payload := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"n":      1,
	}
	if c.size != "" {
		payload["size"] = c.size
	}
	// gpt-image models always answer with base64 and reject the field.
	if strings.HasPrefix(c.model, "dall-e") {
		payload["response_format"] = "b64_json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal image payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("image error %s: %s", resp.Status, strings.TrimSpace(string(errBody)))
	}

	var decoded imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("image response has no data")
	}

	item := decoded.Data[0]
	var data []byte
	switch {
	case item.B64JSON != "":
		data, err = base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
	case item.URL != "":
		data, err = c.download(ctx, item.URL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("image response has neither data nor url")
	}

	return &Image{
		Data:          data,
		MimeType:      http.DetectContentType(data),
		RevisedPrompt: item.RevisedPrompt,
	}, nil
}

func (c *ImageClient) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}
