package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docxbinder/internal/converter"
	"github.com/Lllllllleong/docxbinder/internal/models"
	"github.com/Lllllllleong/docxbinder/internal/pipeline"
)

// memJobStore keeps job records in memory and can fail one status change.
type memJobStore struct {
	jobs      map[string]models.BindJob
	completed map[string]string // requestHash -> jobID
	statuses  []string
	failOn    string
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: map[string]models.BindJob{}, completed: map[string]string{}}
}

func (s *memJobStore) Create(_ context.Context, jobID string, job models.BindJob) error {
	s.jobs[jobID] = job
	s.statuses = append(s.statuses, job.Status)
	return nil
}

func (s *memJobStore) FindCompleted(_ context.Context, requestHash string) (string, *models.BindJob, error) {
	id, ok := s.completed[requestHash]
	if !ok {
		return "", nil, nil
	}
	job := s.jobs[id]
	return id, &job, nil
}

func (s *memJobStore) Update(_ context.Context, jobID string, updates ...firestore.Update) error {
	job := s.jobs[jobID]
	for _, u := range updates {
		switch u.Path {
		case "status":
			job.Status = u.Value.(string)
		case "errorDetails":
			job.ErrorDetails = u.Value.(string)
		}
	}
	s.jobs[jobID] = job
	return nil
}

func (s *memJobStore) UpdateStatus(ctx context.Context, jobID, status, errDetails string) error {
	if status == s.failOn {
		return errors.New("firestore unavailable")
	}
	s.statuses = append(s.statuses, status)
	updates := []firestore.Update{{Path: "status", Value: status}}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	return s.Update(ctx, jobID, updates...)
}

func TestProcess_DuplicateReturnsExistingOutput(t *testing.T) {
	uris := []string{"gs://docs/a.docx", "gs://docs/b.docx"}
	store := newMemJobStore()
	store.jobs["earlier"] = models.BindJob{
		Status:         models.StatusCompleted,
		OutputGCSUri:   "gs://out/earlier/final.pdf",
		PageCount:      7,
		ConvertedCount: 1,
		SkippedInputs:  []string{"gs://docs/b.docx"},
	}
	store.completed[RequestHash(uris)] = "earlier"

	f := &BinderFunction{jobs: store}
	res, err := f.Process(context.Background(), &models.BindRequest{JobID: "again", InputGCSUris: uris})
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.Equal(t, "earlier", res.JobID)
	assert.Equal(t, "gs://out/earlier/final.pdf", res.OutputGCSUri)
	assert.Equal(t, 7, res.PageCount)
	assert.Equal(t, []string{"gs://docs/b.docx"}, res.SkippedInputs)
	assert.NotContains(t, store.jobs, "again", "a duplicate creates no new job")
}

func TestProcess_InvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		req     *models.BindRequest
		wantErr error
	}{
		{"no inputs", &models.BindRequest{JobID: "j"}, ErrNoInputs},
		{"non-GCS URI", &models.BindRequest{JobID: "j", InputGCSUris: []string{"/local/a.docx"}}, ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemJobStore()
			f := &BinderFunction{jobs: store}

			_, err := f.Process(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsPermanent(err))
			assert.Empty(t, store.jobs)
		})
	}
}

func TestProcess_FailureMarksJobFailed(t *testing.T) {
	store := newMemJobStore()
	store.failOn = models.StatusDownloading
	f := &BinderFunction{jobs: store}

	_, err := f.Process(context.Background(), &models.BindRequest{JobID: "q3", InputGCSUris: []string{"gs://docs/a.docx"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update status to DOWNLOADING")
	assert.False(t, IsPermanent(err))

	job := store.jobs["q3"]
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Contains(t, job.ErrorDetails, "firestore unavailable")
	assert.Equal(t, []string{models.StatusReceived, models.StatusFailed}, store.statuses)
}

func TestAttributeOutcome(t *testing.T) {
	uris := []string{"gs://docs/a.docx", "gs://docs/b.docx", "gs://other/a.docx", "gs://docs/a.docx"}
	local := []string{
		filepath.Join("tmp", "input", "0000", "a.docx"),
		filepath.Join("tmp", "input", "0001", "b.docx"),
		filepath.Join("tmp", "input", "0002", "a.docx"),
		filepath.Join("tmp", "input", "0003", "a.docx"),
	}
	failures := []*converter.ConversionError{
		{InputPath: local[1], ExitCode: 1},
		{InputPath: local[2], Err: converter.ErrOutputCollision},
		{InputPath: local[3], Err: converter.ErrOutputCollision},
	}

	converted, skipped := attributeOutcome(uris, local, failures)
	assert.Equal(t, []string{"gs://docs/a.docx"}, converted)
	assert.Equal(t, []string{"gs://docs/b.docx", "gs://other/a.docx", "gs://docs/a.docx"}, skipped)

	converted, skipped = attributeOutcome(uris[:2], local[:2], nil)
	assert.Equal(t, uris[:2], converted)
	assert.Empty(t, skipped)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrNoInputs))
	assert.True(t, IsPermanent(pipeline.ErrNothingConverted))
	_, err := DecodeManifest([]byte(`{`), "docs", "x.manifest.json")
	assert.True(t, IsPermanent(err))
	assert.False(t, IsPermanent(errors.New("connection reset")))
}

func TestIsManifest(t *testing.T) {
	assert.True(t, IsManifest("jobs/quarterly.manifest.json"))
	assert.False(t, IsManifest("jobs/quarterly.json"))
	assert.False(t, IsManifest("input/doc1.docx"))
}

func TestDecodeManifest(t *testing.T) {
	t.Run("explicit URIs keep their order", func(t *testing.T) {
		body := `{"jobId":"q3","inputGcsUris":["gs://docs/b.docx","gs://docs/a.docx"]}`
		req, err := DecodeManifest([]byte(body), "manifests", "q3.manifest.json")
		require.NoError(t, err)
		assert.Equal(t, "q3", req.JobID)
		assert.Equal(t, []string{"gs://docs/b.docx", "gs://docs/a.docx"}, req.InputGCSUris)
	})

	t.Run("job ID from object name", func(t *testing.T) {
		req, err := DecodeManifest([]byte(`{"inputPrefix":"input/"}`), "docs", "batches/q3.manifest.json")
		require.NoError(t, err)
		assert.Equal(t, "batches-q3", req.JobID)
		assert.Equal(t, "docs", req.InputBucket, "prefix defaults to the manifest's bucket")
		assert.Equal(t, "input/", req.InputPrefix)
	})

	t.Run("explicit bucket wins", func(t *testing.T) {
		req, err := DecodeManifest([]byte(`{"inputBucket":"other","inputPrefix":"in/"}`), "docs", "x.manifest.json")
		require.NoError(t, err)
		assert.Equal(t, "other", req.InputBucket)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := DecodeManifest([]byte(`{"inputGcsUris":`), "docs", "x.manifest.json")
		assert.Error(t, err)
	})
}

func TestRequestHash(t *testing.T) {
	a := RequestHash([]string{"gs://docs/a.docx", "gs://docs/b.docx"})
	b := RequestHash([]string{"gs://docs/b.docx", "gs://docs/a.docx"})
	c := RequestHash([]string{"gs://docs/a.docxgs://docs/b.docx"})

	assert.Len(t, a, 64)
	assert.Equal(t, a, RequestHash([]string{"gs://docs/a.docx", "gs://docs/b.docx"}))
	assert.NotEqual(t, a, b, "order is part of the request")
	assert.NotEqual(t, a, c, "URIs are delimited")
}

func TestLocalInputPath(t *testing.T) {
	tmp := filepath.Join("tmp", "job")
	first := LocalInputPath(tmp, 0, "a/report.docx")
	second := LocalInputPath(tmp, 1, "b/report.docx")

	assert.Equal(t, filepath.Join(tmp, "input", "0000", "report.docx"), first)
	assert.Equal(t, filepath.Join(tmp, "input", "0001", "report.docx"), second)
	assert.NotEqual(t, first, second)
}

func TestInputsFromURIs(t *testing.T) {
	inputs, err := inputsFromURIs([]string{"gs://docs/in/doc2.docx", "gs://other/doc1.docx"})
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	assert.Equal(t, input{index: 0, bucket: "docs", object: "in/doc2.docx"}, inputs[0])
	assert.Equal(t, input{index: 1, bucket: "other", object: "doc1.docx"}, inputs[1])
	assert.Equal(t, "gs://docs/in/doc2.docx", inputs[0].uri())

	_, err = inputsFromURIs([]string{"gs://docs/a.docx", "/local/b.docx"})
	assert.Error(t, err)
}
