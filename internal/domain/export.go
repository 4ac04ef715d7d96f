package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditExportFormat selects the output file format for a history export.
type AuditExportFormat string

const (
	AuditExportFormatXLSX AuditExportFormat = "xlsx"
	AuditExportFormatCSV  AuditExportFormat = "csv"
)

// AuditExportJobStatus tracks a job through its lifecycle.
type AuditExportJobStatus string

const (
	AuditExportJobStatusPending   AuditExportJobStatus = "pending"
	AuditExportJobStatusRunning   AuditExportJobStatus = "running"
	AuditExportJobStatusCompleted AuditExportJobStatus = "completed"
	AuditExportJobStatusFailed    AuditExportJobStatus = "failed"
	AuditExportJobStatusCancelled AuditExportJobStatus = "cancelled"
)

// AuditExportJob is an asynchronous export of a case's version history.
type AuditExportJob struct {
	ID           uuid.UUID            `json:"id"`
	CaseID       string               `json:"case_id"`
	Entity       *string              `json:"entity,omitempty"`
	Format       AuditExportFormat    `json:"format"`
	Status       AuditExportJobStatus `json:"status"`
	FilePath     *string              `json:"file_path,omitempty"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	RequestedBy  string               `json:"requested_by"`
	CreatedAt    time.Time            `json:"created_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
}
