package api

import (
	"context"

	"github.com/mtorres/chrono-archiver/internal/chrono"
)

// NoteClient is what the handler needs from the DrChrono API client.
type NoteClient interface {
	FetchNote(ctx context.Context, noteID string, reqID string) (*chrono.ClinicalNote, error)
	DownloadPDF(ctx context.Context, pdfURL string, reqID string) ([]byte, error)
}

// Archiver is what the handler needs from the S3 uploader.
type Archiver interface {
	Key(noteID string) string
	Upload(ctx context.Context, key string, pdfBytes []byte, reqID string) error
}

type OutcomeStatus string

const (
	StatusNoPDF            OutcomeStatus = "no_pdf"
	StatusUploaded         OutcomeStatus = "uploaded"
	StatusProviderNotFound OutcomeStatus = "provider_not_found"
)

// Outcome is the terminal result of the note pipeline. S3Key is set only
// for StatusUploaded.
type Outcome struct {
	Status OutcomeStatus
	S3Key  string
}

type StatusResponse struct {
	Status string `json:"status"`
	S3Key  string `json:"s3_key,omitempty"`
}

type VerificationResponse struct {
	SecretToken string `json:"secret_token"`
}
