package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/docxbinder/internal/converter"
	"github.com/Lllllllleong/docxbinder/internal/gcp"
	"github.com/Lllllllleong/docxbinder/internal/merger"
	"github.com/Lllllllleong/docxbinder/internal/models"
	"github.com/Lllllllleong/docxbinder/internal/pipeline"
)

const (
	docxSuffix     = ".docx"
	manifestSuffix = ".manifest.json"
	downloadLimit  = 10
)

var (
	// ErrNoInputs is returned for a request that names no documents.
	ErrNoInputs = errors.New("request names no input documents")
	// ErrInvalidRequest is returned for a manifest or request that cannot be
	// understood, such as malformed JSON or a URI that is not gs://.
	ErrInvalidRequest = errors.New("invalid bind request")
)

// JobStore records the lifecycle of bind jobs.
type JobStore interface {
	Create(ctx context.Context, jobID string, job models.BindJob) error
	FindCompleted(ctx context.Context, requestHash string) (string, *models.BindJob, error)
	Update(ctx context.Context, jobID string, updates ...firestore.Update) error
	UpdateStatus(ctx context.Context, jobID, status, errDetails string) error
}

// BinderConfig holds configuration for the binder service.
type BinderConfig struct {
	ProjectID        string
	OutputBucket     string
	CollectionName   string
	SofficePath      string
	WorkflowID       string
	WorkflowLocation string
}

// BinderFunction holds dependencies for the bind logic.
type BinderFunction struct {
	storageClient *storage.Client
	jobs          JobStore
	workflow      *gcp.WorkflowTrigger
	binder        *pipeline.Binder
	config        BinderConfig
}

// GCSEvent is the payload of a GCS object event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// input is one document to download, with its position in the request.
type input struct {
	index  int
	bucket string
	object string
}

func (in input) uri() string { return gcp.GCSUri(in.bucket, in.object) }

// NewBinder creates a new BinderFunction instance.
func NewBinder(ctx context.Context) (*BinderFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := BinderConfig{
		ProjectID:        projectID,
		OutputBucket:     gcp.GetEnv("OUTPUT_BUCKET", ""),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "bindJobs"),
		SofficePath:      gcp.GetEnv("SOFFICE_PATH", converter.DefaultBinary),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}
	if config.OutputBucket == "" {
		return nil, fmt.Errorf("OUTPUT_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	f := &BinderFunction{
		storageClient: storageClient,
		jobs:          gcp.NewJobStore(firestoreClient, config.CollectionName),
		binder: pipeline.New(
			converter.New(converter.Config{Binary: config.SofficePath}, nil, nil),
			merger.New(nil),
			nil,
		),
		config: config,
	}
	if config.WorkflowID != "" {
		f.workflow, err = gcp.NewWorkflowTrigger(ctx, config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		if err != nil {
			return nil, err
		}
	}
	slog.Info("Binder logic initialized.", "outputBucket", config.OutputBucket, "workflowId", config.WorkflowID)
	return f, nil
}

// ProcessManifest loads a BindRequest from a manifest object and processes it.
// Objects that are not manifests are ignored.
func (f *BinderFunction) ProcessManifest(ctx context.Context, e GCSEvent) (*models.BindResponse, error) {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !IsManifest(e.Name) {
		logCtx.Info("Object is not a bind manifest. Skipping.")
		return nil, nil
	}

	b, err := gcp.ReadObject(ctx, f.storageClient, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to read manifest", "error", err)
		return nil, err
	}
	req, err := DecodeManifest(b, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to decode manifest", "error", err)
		return nil, err
	}
	return f.Process(ctx, req)
}

// Process converts and binds the requested documents and uploads the result.
func (f *BinderFunction) Process(ctx context.Context, req *models.BindRequest) (*models.BindResponse, error) {
	inputs, err := f.resolveInputs(ctx, req)
	if err != nil {
		slog.Error("Failed to resolve inputs", "error", err, "jobId", req.JobID)
		return nil, err
	}
	uris := make([]string, len(inputs))
	for i, in := range inputs {
		uris[i] = in.uri()
	}

	requestHash := RequestHash(uris)
	jobID := req.JobID
	if jobID == "" {
		jobID = requestHash[:20]
	}
	logCtx := slog.With("jobId", jobID, "executionId", req.ExecutionID, "inputCount", len(inputs))
	logCtx.Info("Processing bind request.")

	existingID, existing, err := f.jobs.FindCompleted(ctx, requestHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return nil, err
	}
	if existing != nil {
		logCtx.Info("Duplicate request detected. Returning existing output.", "existingJobId", existingID)
		return &models.BindResponse{
			Status:         "success",
			JobID:          existingID,
			OutputGCSUri:   existing.OutputGCSUri,
			PageCount:      existing.PageCount,
			ConvertedCount: existing.ConvertedCount,
			SkippedInputs:  existing.SkippedInputs,
			Duplicate:      true,
		}, nil
	}

	if err := f.jobs.Create(ctx, jobID, models.BindJob{
		RequestHash: requestHash,
		Status:      models.StatusReceived,
		InputURIs:   uris,
		InputCount:  len(uris),
	}); err != nil {
		logCtx.Error("Failed to create job record", "error", err)
		return nil, err
	}

	tempDir, err := os.MkdirTemp("", "docx-binder-*")
	if err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "failed to create temp dir", err)
	}
	defer os.RemoveAll(tempDir)
	logCtx.Info("Created temp directory.", "path", tempDir)

	localPaths, err := f.downloadInputs(ctx, logCtx, jobID, tempDir, inputs)
	if err != nil {
		return nil, err
	}

	if err := f.jobs.UpdateStatus(ctx, jobID, models.StatusConverting, ""); err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "failed to update status to CONVERTING", err)
	}
	outDir := filepath.Join(tempDir, "output")
	finalPath := filepath.Join(outDir, pipeline.FinalName)
	res, err := f.binder.Run(ctx, localPaths, outDir, finalPath)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "failed to bind documents", err)
	}

	converted, skipped := attributeOutcome(uris, localPaths, res.Failures)

	fileHash, err := calculateFileHash(finalPath)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "failed to calculate file hash", err)
	}

	outputGCSUri, err := f.uploadResult(ctx, logCtx, jobID, finalPath)
	if err != nil {
		return nil, err
	}

	summary := models.BindSummary{
		JobID:         jobID,
		Inputs:        uris,
		Converted:     converted,
		SkippedInputs: skipped,
		PageCounts:    res.PageCounts,
		PageCount:     res.Pages,
		FileHash:      fileHash,
		OutputGCSUri:  outputGCSUri,
	}
	summaryBytes, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "failed to marshal summary", err)
	}
	bucket := f.storageClient.Bucket(f.config.OutputBucket)
	if err := gcp.SaveToGCSAtomically(ctx, bucket, path.Join(jobID, "summary.json"), string(summaryBytes)); err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "failed to save summary", err)
	}

	updates := []firestore.Update{
		{Path: "status", Value: models.StatusCompleted},
		{Path: "convertedCount", Value: len(converted)},
		{Path: "skippedInputs", Value: skipped},
		{Path: "pageCount", Value: res.Pages},
		{Path: "outputGcsUri", Value: outputGCSUri},
		{Path: "fileHash", Value: fileHash},
	}
	if err := f.jobs.Update(ctx, jobID, updates...); err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "failed to update status to COMPLETED", err)
	}
	logCtx.Info("Bind complete.", "outputGcsUri", outputGCSUri, "pageCount", res.Pages, "skipped", len(skipped))

	if err := f.triggerWorkflow(ctx, logCtx, jobID, outputGCSUri, res.Pages); err != nil {
		// The bound document is already published; a failed hand-off is logged only.
		logCtx.Error("Failed to trigger workflow", "error", err)
	}

	return &models.BindResponse{
		Status:         "success",
		JobID:          jobID,
		OutputGCSUri:   outputGCSUri,
		PageCount:      res.Pages,
		ConvertedCount: len(converted),
		SkippedInputs:  skipped,
	}, nil
}

func (f *BinderFunction) resolveInputs(ctx context.Context, req *models.BindRequest) ([]input, error) {
	if len(req.InputGCSUris) > 0 {
		return inputsFromURIs(req.InputGCSUris)
	}
	if req.InputBucket == "" {
		return nil, ErrNoInputs
	}
	names, err := gcp.ListObjects(ctx, f.storageClient.Bucket(req.InputBucket), req.InputPrefix, docxSuffix)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: nothing under gs://%s/%s", ErrNoInputs, req.InputBucket, req.InputPrefix)
	}
	inputs := make([]input, len(names))
	for i, name := range names {
		inputs[i] = input{index: i, bucket: req.InputBucket, object: name}
	}
	return inputs, nil
}

func (f *BinderFunction) downloadInputs(ctx context.Context, logCtx *slog.Logger, jobID, tempDir string, inputs []input) ([]string, error) {
	if err := f.jobs.UpdateStatus(ctx, jobID, models.StatusDownloading, ""); err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "failed to update status to DOWNLOADING", err)
	}
	logCtx.Info("Starting concurrent download of inputs.")

	localPaths := make([]string, len(inputs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(downloadLimit)

	for _, in := range inputs {
		localPath := LocalInputPath(tempDir, in.index, in.object)
		localPaths[in.index] = localPath

		eg.Go(func() error {
			if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
				return fmt.Errorf("input %d: %w", in.index, err)
			}
			if err := gcp.DownloadObject(gctx, f.storageClient, in.bucket, in.object, localPath); err != nil {
				return fmt.Errorf("input %d: %w", in.index, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, f.handleError(ctx, logCtx, jobID, "one or more inputs failed to download", err)
	}
	logCtx.Info("All inputs downloaded.")
	return localPaths, nil
}

func (f *BinderFunction) uploadResult(ctx context.Context, logCtx *slog.Logger, jobID, finalPath string) (string, error) {
	if err := f.jobs.UpdateStatus(ctx, jobID, models.StatusUploading, ""); err != nil {
		return "", f.handleError(ctx, logCtx, jobID, "failed to update status to UPLOADING", err)
	}
	destObject := path.Join(jobID, pipeline.FinalName)
	if err := gcp.UploadFile(ctx, f.storageClient, f.config.OutputBucket, finalPath, destObject, "application/pdf"); err != nil {
		return "", f.handleError(ctx, logCtx, jobID, "failed to upload bound PDF", err)
	}
	return gcp.GCSUri(f.config.OutputBucket, destObject), nil
}

func (f *BinderFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, jobID, outputGCSUri string, pageCount int) error {
	if f.workflow == nil {
		return nil
	}
	logCtx.Info("Triggering workflow.")
	name, err := f.workflow.Trigger(ctx, map[string]interface{}{
		"jobId":        jobID,
		"outputGcsUri": outputGCSUri,
		"pageCount":    pageCount,
	})
	if err != nil {
		return err
	}
	return f.jobs.Update(ctx, jobID, firestore.Update{Path: "workflowExecutionId", Value: name})
}

func (f *BinderFunction) handleError(ctx context.Context, logCtx *slog.Logger, jobID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := f.jobs.UpdateStatus(ctx, jobID, models.StatusFailed, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// IsManifest reports whether an object name is a bind manifest.
func IsManifest(name string) bool {
	return strings.HasSuffix(name, manifestSuffix)
}

// DecodeManifest parses a manifest object. A manifest without a job ID takes
// the object name, minus its suffix, as the job ID.
func DecodeManifest(b []byte, bucket, name string) (*models.BindRequest, error) {
	var req models.BindRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, fmt.Errorf("%w: failed to decode manifest gs://%s/%s: %w", ErrInvalidRequest, bucket, name, err)
	}
	if req.JobID == "" {
		req.JobID = strings.ReplaceAll(strings.TrimSuffix(name, manifestSuffix), "/", "-")
	}
	if len(req.InputGCSUris) == 0 && req.InputPrefix != "" && req.InputBucket == "" {
		req.InputBucket = bucket
	}
	return &req, nil
}

// RequestHash identifies a request by its ordered input URIs.
func RequestHash(uris []string) string {
	hash := sha256.New()
	for _, u := range uris {
		io.WriteString(hash, u)
		hash.Write([]byte{0})
	}
	return hex.EncodeToString(hash.Sum(nil))
}

// LocalInputPath keeps each download in its own numbered directory so inputs
// with the same base name do not overwrite each other.
func LocalInputPath(tempDir string, index int, object string) string {
	return filepath.Join(tempDir, "input", fmt.Sprintf("%04d", index), path.Base(object))
}

func inputsFromURIs(uris []string) ([]input, error) {
	inputs := make([]input, len(uris))
	for i, u := range uris {
		bucket, object, err := gcp.ParseGCSUri(u)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		inputs[i] = input{index: i, bucket: bucket, object: object}
	}
	return inputs, nil
}

// attributeOutcome maps a pipeline run back to request URIs: the URIs whose
// documents made it into the bound PDF, and those that were skipped, each in
// request order.
func attributeOutcome(uris, localPaths []string, failures []*converter.ConversionError) (converted, skipped []string) {
	failed := make(map[string]bool, len(failures))
	for _, fail := range failures {
		failed[fail.InputPath] = true
	}
	converted = make([]string, 0, len(uris))
	skipped = make([]string, 0, len(failures))
	for i, p := range localPaths {
		if failed[p] {
			skipped = append(skipped, uris[i])
		} else {
			converted = append(converted, uris[i])
		}
	}
	return converted, skipped
}

// IsPermanent reports whether retrying a failed request cannot succeed:
// the request itself is unusable, or every document failed to convert.
func IsPermanent(err error) bool {
	var parseErr *merger.ParseError
	return errors.Is(err, ErrNoInputs) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, pipeline.ErrNothingConverted) ||
		errors.As(err, &parseErr)
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
