package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/legalops/caseledger/internal/db"
	"github.com/legalops/caseledger/internal/domain"
)

// versionRepository implements VersionRepository over Postgres
type versionRepository struct {
	conn *db.Connection
}

// NewVersionRepository creates a new version ledger repository
func NewVersionRepository(conn *db.Connection) VersionRepository {
	return &versionRepository{conn: conn}
}

const versionColumns = `id, case_id, entity, field_name, data_before, data_after,
	actor, reason, change_type, is_undone, undone_by, undone_at, created_at`

// Append inserts one immutable version record
func (r *versionRepository) Append(ctx context.Context, record domain.VersionRecord) (domain.VersionRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	beforeJSON, err := marshalSnapshot(record.DataBefore)
	if err != nil {
		return domain.VersionRecord{}, fmt.Errorf("failed to marshal data_before: %w", err)
	}
	afterJSON, err := marshalSnapshot(record.DataAfter)
	if err != nil {
		return domain.VersionRecord{}, fmt.Errorf("failed to marshal data_after: %w", err)
	}

	row := r.conn.Pool.QueryRow(ctx, `
		INSERT INTO case_versions (id, case_id, entity, field_name, data_before, data_after, actor, reason, change_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+versionColumns,
		record.ID, record.CaseID, record.Entity, toPGText(record.FieldName),
		beforeJSON, afterJSON, record.Actor, toPGText(record.Reason), string(record.ChangeType),
	)

	stored, err := scanVersion(row)
	if err != nil {
		return domain.VersionRecord{}, persistenceError("failed to insert case version", err)
	}
	return stored, nil
}

// GetByID retrieves a single version record
func (r *versionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.VersionRecord, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM case_versions
		WHERE id = $1`,
		id,
	)

	record, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VersionRecord{}, fmt.Errorf("version %s: %w", id, domain.ErrVersionNotFound)
		}
		return domain.VersionRecord{}, persistenceError("failed to get case version", err)
	}
	return record, nil
}

// ListByCase retrieves all versions for a case, newest first
func (r *versionRepository) ListByCase(ctx context.Context, caseID string, entity *string) ([]domain.VersionRecord, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM case_versions
		WHERE case_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{caseID}
	if entity != nil {
		query = `
		SELECT ` + versionColumns + `
		FROM case_versions
		WHERE case_id = $1 AND entity = $2
		ORDER BY created_at DESC, id DESC`
		args = append(args, *entity)
	}

	rows, err := r.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("failed to list case versions", err)
	}
	defer rows.Close()

	records := []domain.VersionRecord{}
	for rows.Next() {
		record, err := scanVersion(rows)
		if err != nil {
			return nil, persistenceError("failed to scan case version", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("failed to read case versions", err)
	}

	return records, nil
}

// Latest retrieves the most recent version for a case/entity pair
func (r *versionRepository) Latest(ctx context.Context, caseID string, entity string) (domain.VersionRecord, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT `+versionColumns+`
		FROM case_versions
		WHERE case_id = $1 AND entity = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		caseID, entity,
	)

	record, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VersionRecord{}, fmt.Errorf("case %s entity %s: %w", caseID, entity, domain.ErrVersionNotFound)
		}
		return domain.VersionRecord{}, persistenceError("failed to get latest case version", err)
	}
	return record, nil
}

// RecordRestore atomically flags the original version undone and inserts the
// restore record. The conditional update is the single-winner guard: whichever
// transaction flips is_undone first wins, the loser sees zero rows affected.
func (r *versionRepository) RecordRestore(ctx context.Context, restore domain.VersionRecord, mark domain.UndoMark) (domain.VersionRecord, error) {
	if restore.ID == uuid.Nil {
		restore.ID = uuid.New()
	}

	beforeJSON, err := marshalSnapshot(restore.DataBefore)
	if err != nil {
		return domain.VersionRecord{}, fmt.Errorf("failed to marshal data_before: %w", err)
	}
	afterJSON, err := marshalSnapshot(restore.DataAfter)
	if err != nil {
		return domain.VersionRecord{}, fmt.Errorf("failed to marshal data_after: %w", err)
	}

	var stored domain.VersionRecord
	err = r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE case_versions
			SET is_undone = TRUE, undone_by = $2, undone_at = $3
			WHERE id = $1 AND is_undone = FALSE`,
			mark.VersionID, mark.UndoneBy, mark.UndoneAt,
		)
		if err != nil {
			return persistenceError("failed to flag version undone", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("version %s: %w", mark.VersionID, domain.ErrVersionAlreadyUndone)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO case_versions (id, case_id, entity, field_name, data_before, data_after, actor, reason, change_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING `+versionColumns,
			restore.ID, restore.CaseID, restore.Entity, toPGText(restore.FieldName),
			beforeJSON, afterJSON, restore.Actor, toPGText(restore.Reason), string(restore.ChangeType),
		)
		stored, err = scanVersion(row)
		if err != nil {
			return persistenceError("failed to insert restore version", err)
		}
		return nil
	})
	if err != nil {
		return domain.VersionRecord{}, err
	}

	return stored, nil
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrPersistence, err)
}

func marshalSnapshot(snapshot map[string]any) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}
	return json.Marshal(snapshot)
}

func unmarshalSnapshot(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var snapshot map[string]any
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func toPGText(value *string) pgtype.Text {
	if value == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *value, Valid: true}
}

func fromPGText(value pgtype.Text) *string {
	if !value.Valid {
		return nil
	}
	text := value.String
	return &text
}

func fromPGTimestamptz(value pgtype.Timestamptz) *time.Time {
	if !value.Valid {
		return nil
	}
	ts := value.Time
	return &ts
}

func scanVersion(row pgx.Row) (domain.VersionRecord, error) {
	var (
		record     domain.VersionRecord
		fieldName  pgtype.Text
		beforeJSON []byte
		afterJSON  []byte
		reason     pgtype.Text
		changeType string
		undoneBy   pgtype.Text
		undoneAt   pgtype.Timestamptz
	)

	if err := row.Scan(
		&record.ID, &record.CaseID, &record.Entity, &fieldName,
		&beforeJSON, &afterJSON, &record.Actor, &reason, &changeType,
		&record.IsUndone, &undoneBy, &undoneAt, &record.CreatedAt,
	); err != nil {
		return domain.VersionRecord{}, err
	}

	dataBefore, err := unmarshalSnapshot(beforeJSON)
	if err != nil {
		return domain.VersionRecord{}, fmt.Errorf("failed to decode data_before for version %s: %w", record.ID, err)
	}
	dataAfter, err := unmarshalSnapshot(afterJSON)
	if err != nil {
		return domain.VersionRecord{}, fmt.Errorf("failed to decode data_after for version %s: %w", record.ID, err)
	}

	record.FieldName = fromPGText(fieldName)
	record.DataBefore = dataBefore
	record.DataAfter = dataAfter
	record.Reason = fromPGText(reason)
	record.ChangeType = domain.ChangeType(changeType)
	record.UndoneBy = fromPGText(undoneBy)
	record.UndoneAt = fromPGTimestamptz(undoneAt)

	return record, nil
}
