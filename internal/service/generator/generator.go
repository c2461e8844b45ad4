// Package generator talks to OpenAI-compatible APIs for article text and
// illustrations.
package generator

import (
	"context"
	"errors"
)

// ErrMisconfigured is returned by clients missing an endpoint, key or model.
var ErrMisconfigured = errors.New("generator client misconfigured")

// Request describes the article to write.
type Request struct {
	Topic       string
	Description string
	ArticleType string
	Language    string
	Keywords    []string
	Style       string
	MinWords    int
	MaxWords    int
}

// Content is a generated article. Body is HTML.
type Content struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Excerpt string `json:"excerpt"`
}

// Image is one generated illustration.
type Image struct {
	Data          []byte
	MimeType      string
	RevisedPrompt string
}

// ContentGenerator writes articles.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req Request) (*Content, error)
}

// ImageGenerator draws illustrations.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*Image, error)
}
