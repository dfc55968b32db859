package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/docxbinder/internal/models"
	"github.com/Lllllllleong/docxbinder/internal/services"
)

var (
	binderInstance *services.BinderFunction
	once           sync.Once
	initErr        error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleBindDocuments", handleBindDocuments)
}

func main() {}

// handleBindDocuments is the HTTP handler for the binder service.
func handleBindDocuments(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		binderInstance, initErr = services.NewBinder(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: Binder initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.BindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := binderInstance.Process(r.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrNoInputs) {
			http.Error(w, "Bad Request: no input documents", http.StatusBadRequest)
			return
		}
		if errors.Is(err, services.ErrInvalidRequest) {
			http.Error(w, "Bad Request: invalid input URIs", http.StatusBadRequest)
			return
		}
		// Error is already logged with context in the Process method.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error(
			"Failed to write response",
			"error", err,
			"jobId", res.JobID,
			"executionId", req.ExecutionID,
		)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
