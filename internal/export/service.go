package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/legalops/caseledger/internal/domain"
	"github.com/legalops/caseledger/internal/repository"
)

var errJobNotRunnable = errors.New("export job is no longer runnable")

var exportHeaders = []string{
	"Recorded At", "Entity", "Field", "Change Type", "Actor", "Reason",
	"Undone", "Undone By", "Undone At", "Data Before", "Data After",
}

// Service runs asynchronous exports of a case's version history.
type Service struct {
	versions repository.VersionRepository
	jobs     repository.ExportJobRepository

	exportDir  string
	jobTimeout time.Duration
	now        func() time.Time

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
}

// Option configures the export service.
type Option func(*Service)

// WithExportDirectory overrides where export files are written.
func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

// WithJobTimeout bounds how long one export job may run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

// NewService creates the export service.
func NewService(versions repository.VersionRepository, jobs repository.ExportJobRepository, opts ...Option) *Service {
	s := &Service{
		versions:   versions,
		jobs:       jobs,
		exportDir:  "./exports",
		jobTimeout: 10 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes one history export.
type Request struct {
	CaseID      string
	Entity      *string
	Format      domain.AuditExportFormat
	RequestedBy string
}

// Queue persists a job and launches its worker.
func (s *Service) Queue(ctx context.Context, req Request) (domain.AuditExportJob, error) {
	if strings.TrimSpace(req.CaseID) == "" {
		return domain.AuditExportJob{}, fmt.Errorf("%w: caseId is required", domain.ErrValidation)
	}
	if strings.TrimSpace(req.RequestedBy) == "" {
		return domain.AuditExportJob{}, fmt.Errorf("%w: requestedBy is required", domain.ErrValidation)
	}
	format := req.Format
	if format == "" {
		format = domain.AuditExportFormatXLSX
	}
	if format != domain.AuditExportFormatXLSX && format != domain.AuditExportFormatCSV {
		return domain.AuditExportJob{}, fmt.Errorf("%w: unsupported export format %q", domain.ErrValidation, format)
	}

	job, err := s.jobs.Create(ctx, domain.AuditExportJob{
		CaseID:      req.CaseID,
		Entity:      req.Entity,
		Format:      format,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		return domain.AuditExportJob{}, err
	}

	s.launchWorker(job)
	return job, nil
}

// GetJob returns one job by id.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (domain.AuditExportJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// ListJobs lists jobs, optionally filtered by case and statuses.
func (s *Service) ListJobs(ctx context.Context, caseID *string, statuses []domain.AuditExportJobStatus, limit, offset int) ([]domain.AuditExportJob, error) {
	if len(statuses) == 0 {
		statuses = []domain.AuditExportJobStatus{
			domain.AuditExportJobStatusPending,
			domain.AuditExportJobStatusRunning,
			domain.AuditExportJobStatusCompleted,
			domain.AuditExportJobStatusFailed,
			domain.AuditExportJobStatusCancelled,
		}
	}
	return s.jobs.List(ctx, caseID, statuses, limit, offset)
}

// CancelJob requests cancellation for a pending or running export job.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (domain.AuditExportJob, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return domain.AuditExportJob{}, err
	}
	if job.Status != domain.AuditExportJobStatusPending && job.Status != domain.AuditExportJobStatusRunning {
		return job, fmt.Errorf("export job in status %s cannot be cancelled", job.Status)
	}
	if err := s.jobs.MarkCancelled(ctx, id, "Cancelled by user"); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			return s.jobs.GetByID(ctx, id)
		}
		return domain.AuditExportJob{}, err
	}
	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return s.jobs.GetByID(ctx, id)
}

// OpenJobFile opens the completed export file for download.
func (s *Service) OpenJobFile(job domain.AuditExportJob) (*os.File, error) {
	if job.Status != domain.AuditExportJobStatusCompleted {
		return nil, fmt.Errorf("export job in status %s has no file", job.Status)
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, errors.New("export file is unavailable")
	}
	file, err := os.Open(*job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

func (s *Service) launchWorker(job domain.AuditExportJob) {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	ctx := baseCtx
	cancelFunc := baseCancel
	if s.jobTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(baseCtx, s.jobTimeout)
		ctx = timeoutCtx
		cancelFunc = func() {
			timeoutCancel()
			baseCancel()
		}
	}
	s.workerCancels.Store(job.ID, cancelFunc)
	go func() {
		defer func() {
			cancelFunc()
			s.workerCancels.Delete(job.ID)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[export] panic while processing job %s: %v", job.ID, rec)
				s.failJob(context.Background(), job.ID, fmt.Errorf("panic: %v", rec))
			}
		}()
		if err := s.run(ctx, job); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				log.Printf("[export] job %s cancelled", job.ID)
			case errors.Is(err, errJobNotRunnable):
				log.Printf("[export] job %s not runnable, skipping", job.ID)
			default:
				s.failJob(ctx, job.ID, err)
			}
		}
	}()
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, err error) {
	if err == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	if markErr := s.jobs.MarkFailed(ctx, jobID, err.Error()); markErr != nil {
		log.Printf("[export] failed to mark job %s as failed: %v (original error: %v)", jobID, markErr, err)
		return
	}
	log.Printf("[export] job %s failed: %v", jobID, err)
}

func (s *Service) run(ctx context.Context, job domain.AuditExportJob) error {
	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		if errors.Is(err, repository.ErrExportJobStatusConflict) {
			return errJobNotRunnable
		}
		return fmt.Errorf("mark export job running: %w", err)
	}

	records, err := s.versions.ListByCase(ctx, job.CaseID, job.Entity)
	if err != nil {
		return fmt.Errorf("load case history: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	finalPath := filepath.Join(s.exportDir, s.fileName(job))
	switch job.Format {
	case domain.AuditExportFormatCSV:
		err = writeCSV(finalPath, records)
	default:
		err = writeXLSX(finalPath, records)
	}
	if err != nil {
		return err
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, finalPath); err != nil {
		return fmt.Errorf("mark export completed: %w", err)
	}
	log.Printf("[export] job %s completed (rows=%d path=%s)", job.ID, len(records), finalPath)
	return nil
}

func (s *Service) fileName(job domain.AuditExportJob) string {
	name := fmt.Sprintf("case-%s-history-%s", sanitizeFileComponent(job.CaseID), job.ID)
	return name + "." + string(job.Format)
}

func sanitizeFileComponent(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, value)
}

func exportRow(record domain.VersionRecord) []string {
	return []string{
		record.CreatedAt.Format(time.RFC3339),
		record.Entity,
		stringOrEmpty(record.FieldName),
		string(record.ChangeType),
		record.Actor,
		stringOrEmpty(record.Reason),
		fmt.Sprintf("%t", record.IsUndone),
		stringOrEmpty(record.UndoneBy),
		formatTime(record.UndoneAt),
		formatSnapshot(record.DataBefore),
		formatSnapshot(record.DataAfter),
	}
}

func writeCSV(path string, records []domain.VersionRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(exportHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(exportRow(record)); err != nil {
			return fmt.Errorf("write history row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush export file: %w", err)
	}
	return nil
}

func writeXLSX(path string, records []domain.VersionRecord) error {
	workbook := excelize.NewFile()
	defer workbook.Close()

	const sheet = "History"
	if err := workbook.SetSheetName(workbook.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerRow := make([]any, len(exportHeaders))
	for i, header := range exportHeaders {
		headerRow[i] = header
	}
	if err := workbook.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, record := range records {
		values := exportRow(record)
		row := make([]any, len(values))
		for j, value := range values {
			row[j] = value
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("compute cell name: %w", err)
		}
		if err := workbook.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write history row: %w", err)
		}
	}

	if err := workbook.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func formatTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.Format(time.RFC3339)
}

func formatSnapshot(snapshot map[string]any) string {
	if snapshot == nil {
		return ""
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Sprintf("%v", snapshot)
	}
	return string(data)
}
