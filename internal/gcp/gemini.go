package gcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/Lllllllleong/anecdotelm/internal/models"
)

var ErrMissingAPIKey = errors.New("gemini: API key is not configured")

// GeminiModel calls the Gemini Developer API with an API key.
type GeminiModel struct {
	apiKey  string
	modelID string

	mu  sync.Mutex
	cli *genai.Client
}

func NewGeminiModel(apiKey, modelID string) *GeminiModel {
	return &GeminiModel{apiKey: strings.TrimSpace(apiKey), modelID: modelID}
}

func (m *GeminiModel) Name() string { return "gemini:" + m.modelID }

func (m *GeminiModel) client(ctx context.Context) (*genai.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cli != nil {
		return m.cli, nil
	}
	if m.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	cli, err := genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
		APIKey:  m.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	m.cli = cli
	return cli, nil
}

func (m *GeminiModel) Generate(ctx context.Context, req *models.GenerationRequest) (string, error) {
	contents, err := geminiContents(req)
	if err != nil {
		return "", err
	}
	cli, err := m.client(ctx)
	if err != nil {
		return "", err
	}

	resp, err := cli.Models.GenerateContent(ctx, m.modelID, contents, geminiConfig(req))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return extractGeminiText(resp), nil
}

func geminiConfig(req *models.GenerationRequest) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}},
		Temperature:       genai.Ptr(req.Temperature),
	}
}

func geminiContents(req *models.GenerationRequest) ([]*genai.Content, error) {
	var parts []*genai.Part
	for _, p := range req.Parts() {
		if p.Inline == nil {
			parts = append(parts, &genai.Part{Text: p.Text})
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Inline.Data)
		if err != nil {
			return nil, fmt.Errorf("decode payload %q: %w", p.Inline.Name, err)
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: p.Inline.MIMEType, Data: data},
		})
	}
	return []*genai.Content{{Role: "user", Parts: parts}}, nil
}

// extractGeminiText joins the non-thought text parts of the first candidate.
func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}
