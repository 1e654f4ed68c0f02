package model

import "time"

// SubmissionStatus is the outcome recorded for a submission.
type SubmissionStatus string

const (
	StatusSucceeded SubmissionStatus = "succeeded"
	StatusFailed    SubmissionStatus = "failed"
)

// AuditEntry is what FairForm remembers about one submission. The files and
// the spreadsheet row themselves live only in the drive.
type AuditEntry struct {
	ID         string           `json:"id"`
	Company    string           `json:"company,omitempty"`
	FolderName string           `json:"folderName,omitempty"`
	FolderLink string           `json:"folderLink,omitempty"`
	Status     SubmissionStatus `json:"status"`
	Counts     Counts           `json:"counts"`
	RowIndex   int              `json:"rowIndex"`
	Formula    string           `json:"formula,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	ErrorKind  string           `json:"errorKind,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}
