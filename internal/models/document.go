package models

import "time"

// Job statuses, in the order a bind job moves through them.
const (
	StatusReceived    = "RECEIVED"
	StatusDownloading = "DOWNLOADING"
	StatusConverting  = "CONVERTING"
	StatusUploading   = "UPLOADING"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
)

// BindJob is the Firestore record for one bind request.
// It tracks the overall status and the outcome of the conversion and merge.
type BindJob struct {
	RequestHash         string    `firestore:"requestHash,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	InputURIs           []string  `firestore:"inputUris,omitempty"`
	InputCount          int       `firestore:"inputCount,omitempty"`
	ConvertedCount      int       `firestore:"convertedCount,omitempty"`
	SkippedInputs       []string  `firestore:"skippedInputs,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	OutputGCSUri        string    `firestore:"outputGcsUri,omitempty"`
	FileHash            string    `firestore:"fileHash,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt           time.Time `firestore:"updatedAt,omitempty"`
}
