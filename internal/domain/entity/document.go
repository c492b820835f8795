package entity

import (
	"time"

	"github.com/assoconnect/approval-flow/internal/domain/workflow"
)

// Document is a workflow document moving through its approval pipeline.
// Payload is type-specific JSON (meeting minutes fields, budget line items)
// and is never inspected by transition logic.
type Document struct {
	ID             string                `json:"id"`
	Type           workflow.DocumentType `json:"document_type"`
	Title          string                `json:"title"`
	Stage          workflow.Stage        `json:"stage"`
	OriginatorID   string                `json:"originator_id"`
	OriginatorRole workflow.Role         `json:"originator_role"`
	Payload        string                `json:"payload"`
	Feedback       string                `json:"feedback,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`

	// History is loaded on demand; append-only, ordered by sequence
	History []*TransitionRecord `json:"history,omitempty"`
}
