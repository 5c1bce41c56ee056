package models

import (
	"encoding/json"
	"time"
)

// Status is the state of a verification or forgery-detection job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFound     Status = "found"
	StatusNotFound  Status = "not_found"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether a poller can stop waiting.
func (s Status) Terminal() bool {
	switch s {
	case StatusFound, StatusNotFound, StatusCompleted, StatusError:
		return true
	}
	return false
}

// VerificationJob is the cached state of one verification run for an
// uploaded file. It is replaced wholesale on every transition.
type VerificationJob struct {
	ContentID          string          `json:"contentId"`
	UserID             string          `json:"userId,omitempty"`
	Status             Status          `json:"status"`
	Message            string          `json:"message,omitempty"`
	ContentHash        string          `json:"contentHash,omitempty"`
	VerificationResult json.RawMessage `json:"verificationResult,omitempty"`
	CreatorsID         string          `json:"creatorsId,omitempty"`
	RecordID           string          `json:"recordId,omitempty"`
	Analysis           string          `json:"analysis,omitempty"`
	StartedAt          time.Time       `json:"startedAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// ContentInfo describes an uploaded file as reported by the upload service.
type ContentInfo struct {
	ContentID   string    `json:"contentId"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	Filename    string    `json:"filename"`
	MediaType   MediaType `json:"mediaType"`
	Endpoint    string    `json:"endpoint"`
}

// MediaType is the coarse kind of an uploaded file.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaUnknown MediaType = "unknown"
)

// Fingerprint is the analysis service's answer for one file.
type Fingerprint struct {
	Hash   string          `json:"hash"`
	Result json.RawMessage `json:"result"`
}

// JobEvent is published when a job reaches a terminal state.
type JobEvent struct {
	Pipeline    string    `json:"pipeline"`
	ContentID   string    `json:"contentId"`
	Status      Status    `json:"status"`
	ContentHash string    `json:"contentHash,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	At          time.Time `json:"at"`
}
