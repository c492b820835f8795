package workflow

import "errors"

var (
	// ErrNotFound is returned when the referenced document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrUnknownDocumentType is returned when no workflow definition is registered
	// for a document type; this indicates a configuration bug
	ErrUnknownDocumentType = errors.New("unknown document type")

	// ErrWrongRole is returned when the actor's role may not act at the current stage
	ErrWrongRole = errors.New("role not permitted at current stage")

	// ErrTerminalStage is returned when the document sits at a terminal stage
	ErrTerminalStage = errors.New("document is at a terminal stage")

	// ErrIllegalTransition is returned when the target stage is not reachable
	// from the current stage
	ErrIllegalTransition = errors.New("illegal stage transition")

	// ErrMissingFeedback is returned when a rejection is attempted without a note
	ErrMissingFeedback = errors.New("rejection requires a feedback note")

	// ErrConflict is returned when a concurrent transition won the compare-and-swap
	// race and retries were exhausted
	ErrConflict = errors.New("concurrent transition conflict")
)
