package models

// These structs define the JSON payloads accepted by the bind-documents
// HTTP function and stored as manifest objects for bind-on-manifest.

// BindRequest names the documents to convert and bind.
// Either InputGCSUris or InputPrefix must be set; explicit URIs keep their
// order, a prefix is listed and sorted by object name.
type BindRequest struct {
	JobID        string   `json:"jobId,omitempty"`
	InputGCSUris []string `json:"inputGcsUris,omitempty"`
	InputBucket  string   `json:"inputBucket,omitempty"`
	InputPrefix  string   `json:"inputPrefix,omitempty"`
	ExecutionID  string   `json:"executionId,omitempty"`
}

// BindResponse is returned once the bound PDF has been uploaded.
type BindResponse struct {
	Status         string   `json:"status"`
	JobID          string   `json:"jobId"`
	OutputGCSUri   string   `json:"outputGcsUri"`
	PageCount      int      `json:"pageCount"`
	ConvertedCount int      `json:"convertedCount"`
	SkippedInputs  []string `json:"skippedInputs,omitempty"`
	Duplicate      bool     `json:"duplicate,omitempty"`
}

// BindSummary is written next to the bound PDF.
type BindSummary struct {
	JobID         string   `json:"jobId"`
	Inputs        []string `json:"inputs"`
	Converted     []string `json:"converted"`
	SkippedInputs []string `json:"skippedInputs,omitempty"`
	PageCounts    []int    `json:"pageCounts"`
	PageCount     int      `json:"pageCount"`
	FileHash      string   `json:"fileHash"`
	OutputGCSUri  string   `json:"outputGcsUri"`
}
