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

	functions.CloudEvent("BindOnManifest", bindOnManifest)
}

// main is required by the Go Functions Framework.
func main() {}

// bindOnManifest runs a bind job for every manifest object written to the
// watched bucket.
func bindOnManifest(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		binderInstance, initErr = services.NewBinder(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		// A malformed event never becomes valid; acknowledge it.
		slog.Error("Failed to unmarshal event data. Dropping event.", "error", err, "data", string(e.Data()), "eventId", e.ID())
		return nil
	}

	_, err := binderInstance.ProcessManifest(ctx, gcsEvent)
	return retryable(err, e.ID())
}

// retryable returns err only when a retry of the event could succeed.
// Returning an error marks the invocation as failed so the event is retried.
func retryable(err error, eventID string) error {
	if err == nil {
		return nil
	}
	if services.IsPermanent(err) {
		slog.Error("Bind request failed permanently. Dropping event.", "error", err, "eventId", eventID)
		return nil
	}
	return fmt.Errorf("bind on manifest: %w", err)
}
