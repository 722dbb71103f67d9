package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/anecdotelm/internal/gcp"
	"github.com/Lllllllleong/anecdotelm/internal/services"
)

var (
	scenarioInstance *services.ScenarioFunction
	once             sync.Once
	initErr          error
)

func init() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleScenarios" is the entry point name we'll see in GCP.
	functions.HTTP("HandleScenarios", handleScenarios)
}

// main serves the function locally; in GCP the framework's own main is used.
func main() {
	port := gcp.GetEnv("PORT", "8080")
	slog.Info("Starting local function server.", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("Function server stopped", "error", err)
		os.Exit(1)
	}
}

func handleScenarios(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		scenarioInstance, initErr = services.NewScenarioFunction(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Scenario API initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	scenarioInstance.ServeHTTP(w, r)
}
