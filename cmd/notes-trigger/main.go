package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/anecdotelm/internal/models"
	"github.com/Lllllllleong/anecdotelm/internal/services"
)

var (
	notesTriggerInstance *services.NotesTriggerFunction
	once                 sync.Once
	initErr              error
)

func init() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("GenerateFromNotes", generateFromNotes)
}

// main is required by the Go Functions Framework.
func main() {}

func generateFromNotes(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		notesTriggerInstance, initErr = services.NewNotesTrigger(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var event models.NotesEvent
	if err := json.Unmarshal(e.Data(), &event); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return notesTriggerInstance.Process(ctx, event)
}
