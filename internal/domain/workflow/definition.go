package workflow

import "fmt"

// StageRule describes what may happen to a document sitting at one stage.
type StageRule struct {
	// RequiredRole is the only role permitted to act while the document sits here
	RequiredRole Role

	// Next lists the stages this stage may transition to
	Next []Stage

	// Terminal marks a stage from which no further transition is permitted
	Terminal bool
}

// Allows returns true if target is one of the rule's permitted next stages.
func (r StageRule) Allows(target Stage) bool {
	for _, s := range r.Next {
		if s == target {
			return true
		}
	}
	return false
}

// Definition is the static, per-document-type description of the workflow:
// the ordered stage list, the role empowered to act at each stage, and the
// designated reject-to-origin stage. Built once at startup, read-only after.
type Definition struct {
	Type DocumentType

	// OriginatorRole is the role allowed to create documents of this type
	OriginatorRole Role

	// Initial is the stage a freshly created document starts at
	Initial Stage

	// RejectStage is the stage a reviewer returns the document to on rejection;
	// transitioning into it always requires a feedback note
	RejectStage Stage

	// Order preserves the declared stage sequence for display and export
	Order []Stage

	rules map[Stage]StageRule
}

// Rule returns the rule for the given stage.
func (d *Definition) Rule(stage Stage) (StageRule, bool) {
	r, ok := d.rules[stage]
	return r, ok
}

// IsTerminal returns true if the stage is terminal under this definition.
func (d *Definition) IsTerminal(stage Stage) bool {
	r, ok := d.rules[stage]
	return ok && r.Terminal
}

// RequiresNote returns true if transitioning into target demands a note.
func (d *Definition) RequiresNote(target Stage) bool {
	return target == d.RejectStage
}

// IsValidStage returns true if the stage belongs to this definition's stage set.
func (d *Definition) IsValidStage(stage Stage) bool {
	_, ok := d.rules[stage]
	return ok
}

// Registry holds the workflow definitions for all known document types.
type Registry struct {
	defs map[DocumentType]*Definition
}

// NewRegistry builds the definition table for the two portal workflows.
//
// meeting_report: draft -> submitted_to_admin -> validated_by_admin ->
// submitted_to_bureau -> acknowledged_by_bureau; the admin reviewer may return
// a submitted report to draft.
//
// budget_request: submitted_to_finance -> reviewed_by_finance ->
// submitted_to_bureau -> approved | rejected; rejection is terminal, there is
// no resubmission cycle for budget requests.
func NewRegistry() *Registry {
	meetingReport := &Definition{
		Type:           TypeMeetingReport,
		OriginatorRole: RoleCommissionAdmin,
		Initial:        StageDraft,
		RejectStage:    StageDraft,
		Order: []Stage{
			StageDraft,
			StageSubmittedToAdmin,
			StageValidatedByAdmin,
			StageSubmittedToBureau,
			StageAcknowledgedByBureau,
		},
		rules: map[Stage]StageRule{
			StageDraft: {
				RequiredRole: RoleCommissionAdmin,
				Next:         []Stage{StageSubmittedToAdmin},
			},
			StageSubmittedToAdmin: {
				RequiredRole: RoleAdminReviewer,
				Next:         []Stage{StageValidatedByAdmin, StageDraft},
			},
			StageValidatedByAdmin: {
				RequiredRole: RoleAdminReviewer,
				Next:         []Stage{StageSubmittedToBureau},
			},
			StageSubmittedToBureau: {
				RequiredRole: RoleBureauMember,
				Next:         []Stage{StageAcknowledgedByBureau},
			},
			StageAcknowledgedByBureau: {
				Terminal: true,
			},
		},
	}

	budgetRequest := &Definition{
		Type:           TypeBudgetRequest,
		OriginatorRole: RoleFinanceRequester,
		Initial:        StageSubmittedToFinance,
		RejectStage:    StageRejected,
		Order: []Stage{
			StageSubmittedToFinance,
			StageReviewedByFinance,
			StageSubmittedToBureau,
			StageApproved,
			StageRejected,
		},
		rules: map[Stage]StageRule{
			StageSubmittedToFinance: {
				RequiredRole: RoleFinanceReviewer,
				Next:         []Stage{StageReviewedByFinance},
			},
			StageReviewedByFinance: {
				RequiredRole: RoleFinanceReviewer,
				Next:         []Stage{StageSubmittedToBureau},
			},
			StageSubmittedToBureau: {
				RequiredRole: RoleBureauMember,
				Next:         []Stage{StageApproved, StageRejected},
			},
			StageApproved: {
				Terminal: true,
			},
			StageRejected: {
				Terminal: true,
			},
		},
	}

	return &Registry{
		defs: map[DocumentType]*Definition{
			TypeMeetingReport: meetingReport,
			TypeBudgetRequest: budgetRequest,
		},
	}
}

// Get returns the definition for the given document type.
func (r *Registry) Get(docType DocumentType) (*Definition, error) {
	def, ok := r.defs[docType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocumentType, docType)
	}
	return def, nil
}

// Types returns the registered document types.
func (r *Registry) Types() []DocumentType {
	types := make([]DocumentType, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	return types
}
