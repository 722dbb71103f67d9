package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/anecdotelm/internal/models"
)

// ErrNoContent means the model answered without any text.
var ErrNoContent = errors.New("no content generated")

// GenerationError wraps every failure of the outbound call. The cause is kept
// for logs and errors.Is; users only see a generic message.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation with %s failed: %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Model is a hosted generative model that returns the text of one response.
type Model interface {
	Name() string
	Generate(ctx context.Context, req *models.GenerationRequest) (string, error)
}

// Client submits exactly one request per call. It never retries.
type Client struct {
	model Model
	now   func() time.Time
}

func NewClient(model Model) *Client {
	return &Client{model: model, now: time.Now}
}

// Generate performs the call and returns the document or a *GenerationError.
func (c *Client) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GeneratedDocument, error) {
	logCtx := slog.With("model", c.model.Name(), "files", len(req.Files))
	logCtx.Info("Requesting scenario generation.")

	text, err := c.model.Generate(ctx, req)
	if err != nil {
		logCtx.Error("Call to generative model failed", "error", err)
		return nil, &GenerationError{Model: c.model.Name(), Err: err}
	}

	text = unwrapMarkdownFence(text)
	if strings.TrimSpace(text) == "" {
		logCtx.Error("Generative model returned no text")
		return nil, &GenerationError{Model: c.model.Name(), Err: ErrNoContent}
	}

	logCtx.Info("Scenario generation complete.", "chars", len(text))
	return &models.GeneratedDocument{Markdown: text, GeneratedAt: c.now()}, nil
}

// unwrapMarkdownFence removes a fence that wraps the whole response. Text that
// is not fully fenced is returned untouched.
func unwrapMarkdownFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return s
	}
	firstLine, rest, ok := strings.Cut(trimmed, "\n")
	if !ok {
		return s
	}
	lang := strings.TrimSpace(strings.TrimPrefix(firstLine, "```"))
	if lang != "" && lang != "markdown" && lang != "md" {
		return s
	}
	body := strings.TrimSuffix(rest, "```")
	if strings.Contains(body, "\n```") {
		return s
	}
	return strings.TrimSpace(body)
}
