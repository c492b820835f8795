package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/assoconnect/approval-flow/internal/application/port"
	"github.com/assoconnect/approval-flow/internal/domain/entity"
	"github.com/assoconnect/approval-flow/internal/domain/workflow"
	"github.com/assoconnect/approval-flow/pkg/database"
)

// HistoryRepository implements port.HistoryRepository over sqlite
type HistoryRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *database.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts a transition record. The table is append-only; nothing in
// this repository updates or deletes rows.
func (r *HistoryRepository) Append(ctx context.Context, rec *entity.TransitionRecord) error {
	query := `
		INSERT INTO transition_history (
			document_id, from_stage, to_stage, actor_id, actor_role,
			action, note, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		rec.DocumentID,
		rec.FromStage.String(),
		rec.ToStage.String(),
		rec.ActorID,
		rec.ActorRole.String(),
		rec.Action,
		rec.Note,
		rec.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append transition record",
			zap.String("document_id", rec.DocumentID),
			zap.Error(err))
		return fmt.Errorf("failed to append transition record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// ListByDocumentID retrieves the full audit trail of a document in order
func (r *HistoryRepository) ListByDocumentID(ctx context.Context, documentID string) ([]*entity.TransitionRecord, error) {
	query := `
		SELECT id, document_id, from_stage, to_stage, actor_id, actor_role,
			action, note, timestamp
		FROM transition_history
		WHERE document_id = ?
		ORDER BY id ASC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list history",
			zap.String("document_id", documentID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []*entity.TransitionRecord
	for rows.Next() {
		var rec entity.TransitionRecord
		var fromStage, toStage, role string

		err := rows.Scan(
			&rec.ID,
			&rec.DocumentID,
			&fromStage,
			&toStage,
			&rec.ActorID,
			&role,
			&rec.Action,
			&rec.Note,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition record: %w", err)
		}

		rec.FromStage = workflow.Stage(fromStage)
		rec.ToStage = workflow.Stage(toStage)
		rec.ActorRole = workflow.Role(role)
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// executor returns the context's transaction when one is open
func (r *HistoryRepository) executor(ctx context.Context) executor {
	if tx, ok := database.TxFromContext(ctx); ok {
		return tx
	}
	return r.db.DB
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
