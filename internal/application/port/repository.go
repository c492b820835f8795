package port

import (
	"context"

	"github.com/assoconnect/approval-flow/internal/domain/entity"
	"github.com/assoconnect/approval-flow/internal/domain/workflow"
)

// DocumentRepository defines persistence operations for workflow documents.
// GetByID returns workflow.ErrNotFound when no document exists for the id.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)

	// UpdateStage writes the new stage and feedback only if the stored stage
	// still equals expected (compare-and-swap); returns workflow.ErrConflict
	// when a concurrent transition got there first.
	UpdateStage(ctx context.Context, id string, expected, target workflow.Stage, feedback string) error

	// UpdatePayload writes the payload only if the stored stage still equals
	// expected; same conflict semantics as UpdateStage.
	UpdatePayload(ctx context.Context, id string, expected workflow.Stage, payload string) error

	ListByTypeAndStage(ctx context.Context, docType workflow.DocumentType, stage workflow.Stage) ([]*entity.Document, error)
	Delete(ctx context.Context, id string) error
}

// HistoryRepository defines persistence operations for the audit log.
// Records are append-only; there is no update or delete.
type HistoryRepository interface {
	Append(ctx context.Context, rec *entity.TransitionRecord) error
	ListByDocumentID(ctx context.Context, documentID string) ([]*entity.TransitionRecord, error)
}

// TransactionManager runs fn inside a database transaction; the transaction
// is carried through the context to the repositories.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
