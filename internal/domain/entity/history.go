package entity

import (
	"time"

	"github.com/assoconnect/approval-flow/internal/domain/workflow"
)

// Action constants for TransitionRecord
const (
	ActionCreate         = "CREATE"
	ActionTransition     = "TRANSITION"
	ActionAmountApproved = "AMOUNT_APPROVED"
)

// TransitionRecord is one immutable audit entry of a document's history.
// Records are only ever appended, never updated or removed.
type TransitionRecord struct {
	ID         int64          `json:"id"`
	DocumentID string         `json:"document_id"`
	FromStage  workflow.Stage `json:"from_stage"`
	ToStage    workflow.Stage `json:"to_stage"`
	ActorID    string         `json:"actor_id"`
	ActorRole  workflow.Role  `json:"actor_role"`
	Action     string         `json:"action"`
	Note       string         `json:"note,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
