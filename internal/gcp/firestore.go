package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/docxbinder/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// JobStore keeps bind job records in one Firestore collection.
type JobStore struct {
	client     *firestore.Client
	collection string
}

// NewJobStore returns a JobStore over the named collection.
func NewJobStore(client *firestore.Client, collection string) *JobStore {
	return &JobStore{client: client, collection: collection}
}

// Create writes a fresh record for jobID, replacing any earlier attempt.
func (s *JobStore) Create(ctx context.Context, jobID string, job models.BindJob) error {
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if _, err := s.client.Collection(s.collection).Doc(jobID).Set(ctx, job); err != nil {
		return fmt.Errorf("failed to create job record %s: %w", jobID, err)
	}
	return nil
}

// FindCompleted returns the ID and record of a completed job with the given
// request hash, or an empty ID if there is none.
func (s *JobStore) FindCompleted(ctx context.Context, requestHash string) (string, *models.BindJob, error) {
	docs, err := s.client.Collection(s.collection).
		Where("requestHash", "==", requestHash).
		Where("status", "==", models.StatusCompleted).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", nil, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) == 0 {
		return "", nil, nil
	}
	var job models.BindJob
	if err := docs[0].DataTo(&job); err != nil {
		return "", nil, fmt.Errorf("failed to decode job %s: %w", docs[0].Ref.ID, err)
	}
	return docs[0].Ref.ID, &job, nil
}

// Update applies field updates to a job record and bumps updatedAt.
func (s *JobStore) Update(ctx context.Context, jobID string, updates ...firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now()})
	if _, err := s.client.Collection(s.collection).Doc(jobID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}

// UpdateStatus sets the status of a job, and errorDetails when non-empty.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID, status, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	return s.Update(ctx, jobID, updates...)
}
