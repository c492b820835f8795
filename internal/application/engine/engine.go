package engine

import (
	"context"
	"strings"
	"time"

	"github.com/assoconnect/approval-flow/internal/domain/entity"
	"github.com/assoconnect/approval-flow/internal/domain/workflow"
)

// Engine is the single authorized mutator of document stage. Every operation
// re-reads current state from the store, so the store remains the one source
// of truth for concurrent callers.
type Engine interface {
	// CreateDocument creates a document at its workflow's initial stage and
	// records the creation as the first history entry.
	CreateDocument(ctx context.Context, docType workflow.DocumentType, originatorID string, originatorRole workflow.Role, title, payload string) (*entity.Document, error)

	// ApplyTransition validates and applies a stage transition, appending an
	// audit record atomically with the stage change.
	ApplyTransition(ctx context.Context, documentID, actorID string, actorRole workflow.Role, target workflow.Stage, note string) (*entity.Document, error)

	// SetAmountApproved records a partial approval amount on a budget request
	// without changing its stage.
	SetAmountApproved(ctx context.Context, documentID, actorID string, actorRole workflow.Role, amount float64) (*entity.Document, error)

	// GetDocument returns a document with its full history loaded.
	GetDocument(ctx context.Context, documentID string) (*entity.Document, error)

	// GetHistory returns the chronologically ordered audit trail of a document.
	GetHistory(ctx context.Context, documentID string) ([]*entity.TransitionRecord, error)

	// ListPending returns the documents of the given type currently sitting at
	// the given stage.
	ListPending(ctx context.Context, docType workflow.DocumentType, stage workflow.Stage) ([]*entity.Document, error)

	// DeleteDocument withdraws a document still at its initial stage. Only the
	// originator may delete.
	DeleteDocument(ctx context.Context, documentID, actorID string, actorRole workflow.Role) error
}

// casRetries bounds how often a lost compare-and-swap race is retried with a
// fresh read before ErrConflict is surfaced to the caller.
const casRetries = 2

// noteMissing reports whether the target stage demands a non-blank note and
// the caller did not supply one, after trimming whitespace.
func noteMissing(def *workflow.Definition, target workflow.Stage, note string) bool {
	return def.RequiresNote(target) && strings.TrimSpace(note) == ""
}

// nowFunc allows tests to pin transition timestamps.
type nowFunc func() time.Time
