package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/assoconnect/approval-flow/internal/application/port"
	"github.com/assoconnect/approval-flow/internal/domain/entity"
	"github.com/assoconnect/approval-flow/internal/domain/workflow"
	"github.com/assoconnect/approval-flow/pkg/database"
)

// DocumentRepository implements port.DocumentRepository over sqlite
type DocumentRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *database.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

const documentColumns = `id, document_type, title, stage, originator_id, originator_role,
	payload, feedback, created_at, updated_at`

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (
			id, document_type, title, stage, originator_id, originator_role,
			payload, feedback, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.executor(ctx).ExecContext(ctx, query,
		doc.ID,
		doc.Type.String(),
		doc.Title,
		doc.Stage.String(),
		doc.OriginatorID,
		doc.OriginatorRole.String(),
		doc.Payload,
		doc.Feedback,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.String("id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}

	return nil
}

// GetByID retrieves a document by id
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`

	doc, err := scanDocument(r.executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// UpdateStage writes the new stage and feedback with a compare-and-swap on the
// stored stage: zero affected rows means a concurrent transition won the race
// (or the document disappeared), surfaced as workflow.ErrConflict.
func (r *DocumentRepository) UpdateStage(ctx context.Context, id string, expected, target workflow.Stage, feedback string) error {
	query := `
		UPDATE documents
		SET stage = ?, feedback = ?, updated_at = ?
		WHERE id = ? AND stage = ?
	`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		target.String(), feedback, time.Now(), id, expected.String())
	if err != nil {
		r.logger.Error("Failed to update stage", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update stage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s no longer at %s", workflow.ErrConflict, id, expected)
	}

	return nil
}

// UpdatePayload writes the payload guarded by the same stage compare-and-swap
func (r *DocumentRepository) UpdatePayload(ctx context.Context, id string, expected workflow.Stage, payload string) error {
	query := `
		UPDATE documents
		SET payload = ?, updated_at = ?
		WHERE id = ? AND stage = ?
	`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		payload, time.Now(), id, expected.String())
	if err != nil {
		r.logger.Error("Failed to update payload", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to update payload: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: document %s no longer at %s", workflow.ErrConflict, id, expected)
	}

	return nil
}

// ListByTypeAndStage retrieves all documents of a type sitting at a stage
func (r *DocumentRepository) ListByTypeAndStage(ctx context.Context, docType workflow.DocumentType, stage workflow.Stage) ([]*entity.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE document_type = ? AND stage = ?
		ORDER BY created_at ASC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, docType.String(), stage.String())
	if err != nil {
		r.logger.Error("Failed to list documents",
			zap.String("document_type", docType.String()),
			zap.String("stage", stage.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Delete removes a document; history rows cascade
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.executor(ctx).ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete document", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete document: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", workflow.ErrNotFound, id)
	}

	return nil
}

// scanner covers *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(s scanner) (*entity.Document, error) {
	var doc entity.Document
	var docType, stage, role string

	err := s.Scan(
		&doc.ID,
		&docType,
		&doc.Title,
		&stage,
		&doc.OriginatorID,
		&role,
		&doc.Payload,
		&doc.Feedback,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Type = workflow.DocumentType(docType)
	doc.Stage = workflow.Stage(stage)
	doc.OriginatorRole = workflow.Role(role)
	return &doc, nil
}

// executor returns the context's transaction when one is open
func (r *DocumentRepository) executor(ctx context.Context) executor {
	if tx, ok := database.TxFromContext(ctx); ok {
		return tx
	}
	return r.db.DB
}

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
