package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/models"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/workflow"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/pkg/database"
)

// RequestRepository owns Request records. Only the workflow engine mutates
// status, stage records and the declined reason, through Save.
type RequestRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *database.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new request at its first stage and assigns its
// reference code from the form type's sequence. The code column carries a
// UNIQUE constraint; a collision there means the sequence invariant broke
// and the insert fails hard.
func (r *RequestRepository) Create(ctx context.Context, req *models.Request, codePrefix string) error {
	return r.db.WithTransaction(func(tx *sql.Tx) error {
		seq, err := nextSequence(ctx, tx, req.FormType)
		if err != nil {
			return err
		}
		req.Code = fmt.Sprintf("%s-%d-%06d", codePrefix, req.CreatedAt.Year(), seq)

		query := `
			INSERT INTO requests (id, code, form_type, status, declined_reason, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, '', 1, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, query,
			req.ID, req.Code, req.FormType, req.Status.String(), req.CreatedAt, req.UpdatedAt,
		); err != nil {
			r.logger.Error("Failed to create request", zap.String("code", req.Code), zap.Error(err))
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Version = 1

		itemQuery := `
			INSERT INTO request_items (request_id, position, description, quantity, unit, amount, remarks)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`
		for i := range req.Items {
			item := &req.Items[i]
			item.RequestID = req.ID
			item.Position = i
			result, err := tx.ExecContext(ctx, itemQuery,
				item.RequestID, item.Position, item.Description, item.Quantity, item.Unit, item.Amount, item.Remarks,
			)
			if err != nil {
				return fmt.Errorf("failed to create request item: %w", err)
			}
			if item.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get item id: %w", err)
			}
		}
		return nil
	})
}

// nextSequence advances and returns the per-form-type monotonic sequence.
func nextSequence(ctx context.Context, tx *sql.Tx, formType string) (int64, error) {
	query := `
		INSERT INTO form_sequences (form_type, next_seq) VALUES (?, 1)
		ON CONFLICT(form_type) DO UPDATE SET next_seq = next_seq + 1
		RETURNING next_seq
	`
	var seq int64
	if err := tx.QueryRowContext(ctx, query, formType).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to advance sequence for %s: %w", formType, err)
	}
	return seq, nil
}

// GetByCode retrieves a request with its items and stage records.
func (r *RequestRepository) GetByCode(ctx context.Context, code string) (*models.Request, error) {
	query := `
		SELECT id, code, form_type, status, declined_reason, version, created_at, updated_at
		FROM requests
		WHERE code = ?
	`

	var req models.Request
	var status string
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&req.ID, &req.Code, &req.FormType, &status, &req.DeclinedReason,
		&req.Version, &req.CreatedAt, &req.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, code)
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	req.Status = models.Status(status)

	if err := r.loadItems(ctx, &req); err != nil {
		return nil, err
	}
	if err := r.loadStageRecords(ctx, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListByStatus returns requests whose status is one of the given values,
// optionally narrowed to a form type. Results are ordered oldest first so
// reviewers see their queue in submission order.
func (r *RequestRepository) ListByStatus(ctx context.Context, formType string, statuses []string) ([]*models.Request, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, code, form_type, status, declined_reason, version, created_at, updated_at
		FROM requests
		WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)
	`
	args := make([]interface{}, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, s)
	}
	if formType != "" {
		query += " AND form_type = ?"
		args = append(args, formType)
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.Request
	for rows.Next() {
		var req models.Request
		var status string
		if err := rows.Scan(
			&req.ID, &req.Code, &req.FormType, &status, &req.DeclinedReason,
			&req.Version, &req.CreatedAt, &req.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		req.Status = models.Status(status)
		requests = append(requests, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requests: %w", err)
	}

	for _, req := range requests {
		if err := r.loadItems(ctx, req); err != nil {
			return nil, err
		}
		if err := r.loadStageRecords(ctx, req); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

// Save persists a status advance. The UPDATE is guarded by an optimistic
// version check: a stale version means a concurrent transition already
// landed, reported as ErrConflict. The stage record, when present, commits
// in the same transaction so status and evidence advance together.
func (r *RequestRepository) Save(ctx context.Context, req *models.Request, record *models.StageRecord) error {
	return r.db.WithTransaction(func(tx *sql.Tx) error {
		now := time.Now().UTC()
		query := `
			UPDATE requests
			SET status = ?, declined_reason = ?, version = version + 1, updated_at = ?
			WHERE code = ? AND version = ?
		`
		result, err := tx.ExecContext(ctx, query,
			req.Status.String(), req.DeclinedReason, now, req.Code, req.Version,
		)
		if err != nil {
			r.logger.Error("Failed to save request", zap.String("code", req.Code), zap.Error(err))
			return fmt.Errorf("failed to save request: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check save result: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s at version %d", workflow.ErrConflict, req.Code, req.Version)
		}

		if record != nil {
			extra, err := marshalExtraFields(record.ExtraFields)
			if err != nil {
				return err
			}
			recordQuery := `
				INSERT INTO stage_records (request_id, stage, actor_name, signature_ref, extra_fields, occurred_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`
			if _, err := tx.ExecContext(ctx, recordQuery,
				req.ID, record.Stage, record.ActorName, record.SignatureRef, extra, record.OccurredAt,
			); err != nil {
				return fmt.Errorf("failed to record stage: %w", err)
			}
		}

		req.Version++
		req.UpdatedAt = now
		return nil
	})
}

func (r *RequestRepository) loadItems(ctx context.Context, req *models.Request) error {
	query := `
		SELECT id, request_id, position, description, quantity, unit, amount, remarks
		FROM request_items
		WHERE request_id = ?
		ORDER BY position ASC
	`
	rows, err := r.db.QueryContext(ctx, query, req.ID)
	if err != nil {
		return fmt.Errorf("failed to load items: %w", err)
	}
	defer rows.Close()

	req.Items = nil
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(
			&item.ID, &item.RequestID, &item.Position, &item.Description,
			&item.Quantity, &item.Unit, &item.Amount, &item.Remarks,
		); err != nil {
			return fmt.Errorf("failed to scan item: %w", err)
		}
		req.Items = append(req.Items, item)
	}
	return rows.Err()
}

func (r *RequestRepository) loadStageRecords(ctx context.Context, req *models.Request) error {
	query := `
		SELECT stage, actor_name, signature_ref, extra_fields, occurred_at
		FROM stage_records
		WHERE request_id = ?
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, req.ID)
	if err != nil {
		return fmt.Errorf("failed to load stage records: %w", err)
	}
	defer rows.Close()

	req.StageRecords = nil
	for rows.Next() {
		var record models.StageRecord
		var extra string
		if err := rows.Scan(
			&record.Stage, &record.ActorName, &record.SignatureRef, &extra, &record.OccurredAt,
		); err != nil {
			return fmt.Errorf("failed to scan stage record: %w", err)
		}
		if extra != "" {
			if err := json.Unmarshal([]byte(extra), &record.ExtraFields); err != nil {
				return fmt.Errorf("failed to parse stage record fields: %w", err)
			}
		}
		req.StageRecords = append(req.StageRecords, record)
	}
	return rows.Err()
}

func marshalExtraFields(fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal extra fields: %w", err)
	}
	return string(data), nil
}
