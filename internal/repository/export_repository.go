package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/legalops/caseledger/internal/db"
	"github.com/legalops/caseledger/internal/domain"
)

// ErrExportJobStatusConflict indicates that a job cannot transition to the requested state.
var ErrExportJobStatusConflict = errors.New("export job status conflict")

// ErrExportJobNotFound indicates the referenced export job does not exist.
var ErrExportJobNotFound = errors.New("export job not found")

// exportJobRepository implements ExportJobRepository over Postgres
type exportJobRepository struct {
	conn *db.Connection
}

// NewExportJobRepository wires a repository for managing audit export jobs.
func NewExportJobRepository(conn *db.Connection) ExportJobRepository {
	return &exportJobRepository{conn: conn}
}

const exportJobColumns = `id, case_id, entity, format, status, file_path,
	error_message, requested_by, created_at, started_at, finished_at`

func (r *exportJobRepository) Create(ctx context.Context, job domain.AuditExportJob) (domain.AuditExportJob, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Format == "" {
		job.Format = domain.AuditExportFormatXLSX
	}

	row := r.conn.Pool.QueryRow(ctx, `
		INSERT INTO audit_export_jobs (id, case_id, entity, format, requested_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+exportJobColumns,
		job.ID, job.CaseID, toPGText(job.Entity), string(job.Format), job.RequestedBy,
	)

	stored, err := scanExportJob(row)
	if err != nil {
		return domain.AuditExportJob{}, fmt.Errorf("insert export job: %w", err)
	}
	return stored, nil
}

func (r *exportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.AuditExportJob, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT `+exportJobColumns+`
		FROM audit_export_jobs
		WHERE id = $1`,
		id,
	)

	job, err := scanExportJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AuditExportJob{}, fmt.Errorf("export job %s: %w", id, ErrExportJobNotFound)
		}
		return domain.AuditExportJob{}, fmt.Errorf("get export job: %w", err)
	}
	return job, nil
}

func (r *exportJobRepository) List(ctx context.Context, caseID *string, statuses []domain.AuditExportJobStatus, limit, offset int) ([]domain.AuditExportJob, error) {
	if len(statuses) == 0 {
		return []domain.AuditExportJob{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	statusValues := make([]string, len(statuses))
	for i, status := range statuses {
		statusValues[i] = string(status)
	}

	rows, err := r.conn.Pool.Query(ctx, `
		SELECT `+exportJobColumns+`
		FROM audit_export_jobs
		WHERE status = ANY($1)
		  AND ($2::varchar IS NULL OR case_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		statusValues, toPGText(caseID), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list export jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.AuditExportJob{}
	for rows.Next() {
		job, scanErr := scanExportJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan export job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read export jobs: %w", err)
	}

	return jobs, nil
}

func (r *exportJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, `
		UPDATE audit_export_jobs
		SET status = 'running', started_at = $2
		WHERE id = $1 AND status = 'pending'`,
		id, time.Now())
}

func (r *exportJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, filePath string) error {
	return r.transition(ctx, `
		UPDATE audit_export_jobs
		SET status = 'completed', file_path = $2, finished_at = $3
		WHERE id = $1 AND status = 'running'`,
		id, filePath, time.Now())
}

func (r *exportJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return r.transition(ctx, `
		UPDATE audit_export_jobs
		SET status = 'failed', error_message = $2, finished_at = $3
		WHERE id = $1 AND status IN ('pending', 'running')`,
		id, errorMessage, time.Now())
}

func (r *exportJobRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	return r.transition(ctx, `
		UPDATE audit_export_jobs
		SET status = 'cancelled', error_message = $2, finished_at = $3
		WHERE id = $1 AND status IN ('pending', 'running')`,
		id, reason, time.Now())
}

// transition applies a guarded status update; zero rows affected means the job
// was already in a terminal or competing state.
func (r *exportJobRepository) transition(ctx context.Context, query string, args ...any) error {
	tag, err := r.conn.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update export job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExportJobStatusConflict
	}
	return nil
}

func scanExportJob(row pgx.Row) (domain.AuditExportJob, error) {
	var (
		job          domain.AuditExportJob
		entity       pgtype.Text
		format       string
		status       string
		filePath     pgtype.Text
		errorMessage pgtype.Text
		startedAt    pgtype.Timestamptz
		finishedAt   pgtype.Timestamptz
	)

	if err := row.Scan(
		&job.ID, &job.CaseID, &entity, &format, &status, &filePath,
		&errorMessage, &job.RequestedBy, &job.CreatedAt, &startedAt, &finishedAt,
	); err != nil {
		return domain.AuditExportJob{}, err
	}

	job.Entity = fromPGText(entity)
	job.Format = domain.AuditExportFormat(format)
	job.Status = domain.AuditExportJobStatus(status)
	job.FilePath = fromPGText(filePath)
	job.ErrorMessage = fromPGText(errorMessage)
	job.StartedAt = fromPGTimestamptz(startedAt)
	job.FinishedAt = fromPGTimestamptz(finishedAt)

	return job, nil
}
