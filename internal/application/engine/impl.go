package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assoconnect/approval-flow/internal/application/port"
	"github.com/assoconnect/approval-flow/internal/domain/entity"
	"github.com/assoconnect/approval-flow/internal/domain/workflow"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	registry *workflow.Registry
	docRepo  port.DocumentRepository
	histRepo port.HistoryRepository
	tx       port.TransactionManager
	logger   *zap.Logger
	now      nowFunc
}

// Option configures the engine
type Option func(*engineImpl)

// WithClock overrides the timestamp source (used in tests)
func WithClock(now func() time.Time) Option {
	return func(e *engineImpl) {
		e.now = now
	}
}

// New creates the workflow engine
func New(
	registry *workflow.Registry,
	docRepo port.DocumentRepository,
	histRepo port.HistoryRepository,
	tx port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) Engine {
	e := &engineImpl{
		registry: registry,
		docRepo:  docRepo,
		histRepo: histRepo,
		tx:       tx,
		logger:   logger,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateDocument creates a document at its workflow's initial stage
func (e *engineImpl) CreateDocument(ctx context.Context, docType workflow.DocumentType, originatorID string, originatorRole workflow.Role, title, payload string) (*entity.Document, error) {
	def, err := e.registry.Get(docType)
	if err != nil {
		return nil, err
	}

	if originatorRole != def.OriginatorRole {
		return nil, fmt.Errorf("%w: %s documents are created by %s, got %s",
			workflow.ErrWrongRole, docType, def.OriginatorRole, originatorRole)
	}

	now := e.now()
	doc := &entity.Document{
		ID:             uuid.NewString(),
		Type:           docType,
		Title:          title,
		Stage:          def.Initial,
		OriginatorID:   originatorID,
		OriginatorRole: originatorRole,
		Payload:        payload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// History must never be empty: creation itself is the first audit entry,
	// recorded with both stages equal to the initial stage.
	rec := &entity.TransitionRecord{
		DocumentID: doc.ID,
		FromStage:  def.Initial,
		ToStage:    def.Initial,
		ActorID:    originatorID,
		ActorRole:  originatorRole,
		Action:     entity.ActionCreate,
		Timestamp:  now,
	}

	err = e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.docRepo.Create(txCtx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := e.histRepo.Append(txCtx, rec); err != nil {
			return fmt.Errorf("append creation record: %w", err)
		}
		return nil
	})
	if err != nil {
		e.logger.Error("Failed to create document",
			zap.String("document_type", docType.String()),
			zap.Error(err))
		return nil, err
	}

	doc.History = []*entity.TransitionRecord{rec}

	e.logger.Info("Document created",
		zap.String("id", doc.ID),
		zap.String("document_type", docType.String()),
		zap.String("stage", doc.Stage.String()))
	return doc, nil
}

// ApplyTransition validates and applies a stage transition. On a lost
// compare-and-swap race the full read-validate-write cycle is retried with
// fresh state; denials are returned immediately and never mutate anything.
func (e *engineImpl) ApplyTransition(ctx context.Context, documentID, actorID string, actorRole workflow.Role, target workflow.Stage, note string) (*entity.Document, error) {
	var conflict error

	for attempt := 0; attempt <= casRetries; attempt++ {
		doc, err := e.docRepo.GetByID(ctx, documentID)
		if err != nil {
			return nil, err
		}

		def, err := e.registry.Get(doc.Type)
		if err != nil {
			return nil, err
		}

		if err := workflow.Authorize(def, doc.Stage, actorRole, target); err != nil {
			return nil, err
		}

		// Every rejection must be explainable to the originator
		if noteMissing(def, target, note) {
			return nil, fmt.Errorf("%w: transition to %s", workflow.ErrMissingFeedback, target)
		}

		// Feedback carries the reviewer's note on rejection and is cleared on
		// every other transition (resubmission included)
		feedback := ""
		if def.RequiresNote(target) {
			feedback = note
		}

		rec := &entity.TransitionRecord{
			DocumentID: doc.ID,
			FromStage:  doc.Stage,
			ToStage:    target,
			ActorID:    actorID,
			ActorRole:  actorRole,
			Action:     entity.ActionTransition,
			Note:       note,
			Timestamp:  e.now(),
		}

		err = e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := e.docRepo.UpdateStage(txCtx, doc.ID, doc.Stage, target, feedback); err != nil {
				return err
			}
			if err := e.histRepo.Append(txCtx, rec); err != nil {
				return fmt.Errorf("append transition record: %w", err)
			}
			return nil
		})
		if errors.Is(err, workflow.ErrConflict) {
			conflict = err
			e.logger.Warn("Transition lost compare-and-swap race, retrying",
				zap.String("id", doc.ID),
				zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			e.logger.Error("Failed to apply transition",
				zap.String("id", doc.ID),
				zap.String("target", target.String()),
				zap.Error(err))
			return nil, err
		}

		doc.Stage = target
		doc.Feedback = feedback
		doc.UpdatedAt = rec.Timestamp
		if history, err := e.histRepo.ListByDocumentID(ctx, doc.ID); err == nil {
			doc.History = history
		} else {
			doc.History = []*entity.TransitionRecord{rec}
		}

		e.logger.Info("Transition applied",
			zap.String("id", doc.ID),
			zap.String("from", rec.FromStage.String()),
			zap.String("to", rec.ToStage.String()),
			zap.String("actor_role", actorRole.String()))
		return doc, nil
	}

	return nil, conflict
}

// SetAmountApproved patches the amountApproved field into a budget request's
// payload while finance still holds the document; the stage does not move.
func (e *engineImpl) SetAmountApproved(ctx context.Context, documentID, actorID string, actorRole workflow.Role, amount float64) (*entity.Document, error) {
	var conflict error

	for attempt := 0; attempt <= casRetries; attempt++ {
		doc, err := e.docRepo.GetByID(ctx, documentID)
		if err != nil {
			return nil, err
		}

		if doc.Type != workflow.TypeBudgetRequest {
			return nil, fmt.Errorf("%w: partial approval only applies to %s documents",
				workflow.ErrIllegalTransition, workflow.TypeBudgetRequest)
		}

		def, err := e.registry.Get(doc.Type)
		if err != nil {
			return nil, err
		}

		rule, ok := def.Rule(doc.Stage)
		if !ok || rule.Terminal {
			return nil, fmt.Errorf("%w: %s", workflow.ErrTerminalStage, doc.Stage)
		}
		if rule.RequiredRole != workflow.RoleFinanceReviewer || actorRole != workflow.RoleFinanceReviewer {
			return nil, fmt.Errorf("%w: partial approval requires %s at a finance stage",
				workflow.ErrWrongRole, workflow.RoleFinanceReviewer)
		}

		payload, err := patchAmountApproved(doc.Payload, amount)
		if err != nil {
			return nil, fmt.Errorf("patch payload: %w", err)
		}

		rec := &entity.TransitionRecord{
			DocumentID: doc.ID,
			FromStage:  doc.Stage,
			ToStage:    doc.Stage,
			ActorID:    actorID,
			ActorRole:  actorRole,
			Action:     entity.ActionAmountApproved,
			Note:       strconv.FormatFloat(amount, 'f', 2, 64),
			Timestamp:  e.now(),
		}

		err = e.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := e.docRepo.UpdatePayload(txCtx, doc.ID, doc.Stage, payload); err != nil {
				return err
			}
			if err := e.histRepo.Append(txCtx, rec); err != nil {
				return fmt.Errorf("append amount record: %w", err)
			}
			return nil
		})
		if errors.Is(err, workflow.ErrConflict) {
			conflict = err
			continue
		}
		if err != nil {
			e.logger.Error("Failed to set approved amount",
				zap.String("id", doc.ID),
				zap.Error(err))
			return nil, err
		}

		doc.Payload = payload
		doc.UpdatedAt = rec.Timestamp

		e.logger.Info("Approved amount recorded",
			zap.String("id", doc.ID),
			zap.Float64("amount", amount))
		return doc, nil
	}

	return nil, conflict
}

// GetDocument returns a document with its full history loaded
func (e *engineImpl) GetDocument(ctx context.Context, documentID string) (*entity.Document, error) {
	doc, err := e.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	history, err := e.histRepo.ListByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	doc.History = history

	return doc, nil
}

// GetHistory returns the ordered audit trail of a document
func (e *engineImpl) GetHistory(ctx context.Context, documentID string) ([]*entity.TransitionRecord, error) {
	// Surface NotFound for unknown documents rather than an empty trail
	if _, err := e.docRepo.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return e.histRepo.ListByDocumentID(ctx, documentID)
}

// ListPending returns the documents of a type currently at a stage
func (e *engineImpl) ListPending(ctx context.Context, docType workflow.DocumentType, stage workflow.Stage) ([]*entity.Document, error) {
	def, err := e.registry.Get(docType)
	if err != nil {
		return nil, err
	}
	if !def.IsValidStage(stage) {
		return nil, fmt.Errorf("%w: stage %s not in %s workflow", workflow.ErrIllegalTransition, stage, docType)
	}

	return e.docRepo.ListByTypeAndStage(ctx, docType, stage)
}

// DeleteDocument withdraws a document still at its initial stage
func (e *engineImpl) DeleteDocument(ctx context.Context, documentID, actorID string, actorRole workflow.Role) error {
	doc, err := e.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	def, err := e.registry.Get(doc.Type)
	if err != nil {
		return err
	}

	if actorID != doc.OriginatorID || actorRole != doc.OriginatorRole {
		return fmt.Errorf("%w: only the originator may withdraw a document", workflow.ErrWrongRole)
	}
	if doc.Stage != def.Initial {
		return fmt.Errorf("%w: document already entered review at %s", workflow.ErrIllegalTransition, doc.Stage)
	}

	if err := e.docRepo.Delete(ctx, documentID); err != nil {
		return err
	}

	e.logger.Info("Document withdrawn", zap.String("id", documentID))
	return nil
}

// patchAmountApproved sets amountApproved in the payload JSON, treating an
// empty payload as an empty object. The rest of the payload stays untouched.
func patchAmountApproved(payload string, amount float64) (string, error) {
	fields := map[string]interface{}{}
	if strings.TrimSpace(payload) != "" {
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return "", err
		}
	}
	fields["amountApproved"] = amount

	out, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
