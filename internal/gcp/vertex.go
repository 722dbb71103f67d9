package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/anecdotelm/internal/models"
)

// VertexModel runs the scenario model on Vertex AI with the project's ambient
// credentials. The client is created on first use so configuration problems
// surface as generation failures.
type VertexModel struct {
	projectID string
	region    string
	modelID   string

	mu         sync.Mutex
	baseClient *genai.Client
}

func NewVertexModel(projectID, region, modelID string) *VertexModel {
	return &VertexModel{projectID: projectID, region: region, modelID: modelID}
}

func (m *VertexModel) Name() string { return "vertex:" + m.modelID }

func (m *VertexModel) client(ctx context.Context) (*genai.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseClient != nil {
		return m.baseClient, nil
	}
	if m.projectID == "" || m.region == "" {
		return nil, fmt.Errorf("vertex: projectID and region cannot be empty")
	}
	c, err := genai.NewClient(context.WithoutCancel(ctx), m.projectID, m.region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	m.baseClient = c
	return c, nil
}

// Generate sends the request as inline blobs followed by the instruction text.
func (m *VertexModel) Generate(ctx context.Context, req *models.GenerationRequest) (string, error) {
	parts, err := vertexParts(req)
	if err != nil {
		return "", err
	}
	c, err := m.client(ctx)
	if err != nil {
		return "", err
	}

	model := c.GenerativeModel(m.modelID)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemInstruction)},
	}
	model.SetTemperature(req.Temperature)

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return extractVertexText(resp), nil
}

func (m *VertexModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseClient != nil {
		return m.baseClient.Close()
	}
	return nil
}

func vertexParts(req *models.GenerationRequest) ([]genai.Part, error) {
	var parts []genai.Part
	for _, p := range req.Parts() {
		if p.Inline == nil {
			parts = append(parts, genai.Text(p.Text))
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Inline.Data)
		if err != nil {
			return nil, fmt.Errorf("decode payload %q: %w", p.Inline.Name, err)
		}
		parts = append(parts, genai.Blob{MIMEType: p.Inline.MIMEType, Data: data})
	}
	return parts, nil
}

// extractVertexText concatenates the text parts of the first candidate.
func extractVertexText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
