package workflow

// DocumentType selects which workflow definition applies to a document
type DocumentType string

const (
	TypeMeetingReport DocumentType = "meeting_report"
	TypeBudgetRequest DocumentType = "budget_request"
)

// String returns the string representation of the document type
func (t DocumentType) String() string {
	return string(t)
}

// Stage represents a named position in a document's approval lifecycle
type Stage string

// Meeting report stages
const (
	StageDraft                Stage = "draft"
	StageSubmittedToAdmin     Stage = "submitted_to_admin"
	StageValidatedByAdmin     Stage = "validated_by_admin"
	StageAcknowledgedByBureau Stage = "acknowledged_by_bureau"
)

// Budget request stages
const (
	StageSubmittedToFinance Stage = "submitted_to_finance"
	StageReviewedByFinance  Stage = "reviewed_by_finance"
	StageApproved           Stage = "approved"
	StageRejected           Stage = "rejected"
)

// StageSubmittedToBureau is shared by both document types
const StageSubmittedToBureau Stage = "submitted_to_bureau"

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// Role identifies the organizational function of an actor
type Role string

const (
	RoleCommissionAdmin  Role = "commission_admin"
	RoleAdminReviewer    Role = "admin_reviewer"
	RoleBureauMember     Role = "bureau_member"
	RoleFinanceRequester Role = "finance_requester"
	RoleFinanceReviewer  Role = "finance_reviewer"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}
