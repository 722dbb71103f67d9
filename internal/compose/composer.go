package compose

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/anecdotelm/internal/models"
)

var ErrNoPayloads = errors.New("compose: no file payloads")

// Compose builds the request for one batch. Payloads are copied so later
// changes to the caller's slice do not leak into the request.
func Compose(payloads []models.EncodedFilePayload) (*models.GenerationRequest, error) {
	if len(payloads) == 0 {
		return nil, ErrNoPayloads
	}
	for _, p := range payloads {
		if p.MIMEType == "" {
			return nil, fmt.Errorf("compose: payload %q has no MIME type", p.Name)
		}
		if strings.HasPrefix(p.Data, "data:") {
			return nil, fmt.Errorf("compose: payload %q still carries a data URI header", p.Name)
		}
	}

	files := make([]models.EncodedFilePayload, len(payloads))
	copy(files, payloads)

	return &models.GenerationRequest{
		Files:             files,
		Instruction:       ScenarioUserPrompt,
		SystemInstruction: ScenarioSystemPrompt,
		Temperature:       ScenarioTemperature,
	}, nil
}
