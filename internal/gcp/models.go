package gcp

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/anecdotelm/internal/generation"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"

	DefaultModelID = "gemini-3-pro-preview"
)

// ModelConfig selects and configures the generative backend.
type ModelConfig struct {
	Backend   string
	ModelID   string
	APIKey    string
	ProjectID string
	Region    string
}

// LoadModelConfig reads the backend settings from the environment. The API key
// may be missing; that is reported when a request is made.
func LoadModelConfig() ModelConfig {
	return ModelConfig{
		Backend:   strings.ToLower(strings.TrimSpace(GetEnv("GENERATION_BACKEND", BackendGemini))),
		ModelID:   GetEnv("SCENARIO_MODEL", DefaultModelID),
		APIKey:    firstNonEmpty(GetEnv("GEMINI_API_KEY", ""), GetEnv("GOOGLE_API_KEY", ""), GetEnv("API_KEY", "")),
		ProjectID: GetEnv("PROJECT_ID", ""),
		Region:    GetEnv("VERTEX_AI_REGION", "us-central1"),
	}
}

// NewModel builds the configured backend without contacting it.
func NewModel(cfg ModelConfig) (generation.Model, error) {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}
	switch cfg.Backend {
	case "", BackendGemini:
		return NewGeminiModel(cfg.APIKey, modelID), nil
	case BackendVertex:
		return NewVertexModel(cfg.ProjectID, cfg.Region, modelID), nil
	default:
		return nil, fmt.Errorf("unknown GENERATION_BACKEND %q", cfg.Backend)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
