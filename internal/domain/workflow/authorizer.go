package workflow

import "fmt"

// Authorize decides whether actorRole may move a document of the definition's
// type from current to target. Pure function of its inputs; no side effects.
//
// The checks run in a fixed order so that denials are stable: a terminal stage
// is reported as ErrTerminalStage even if the role is also wrong.
func Authorize(def *Definition, current Stage, actorRole Role, target Stage) error {
	rule, ok := def.Rule(current)
	if !ok {
		return fmt.Errorf("%w: stage %s not in %s workflow", ErrIllegalTransition, current, def.Type)
	}

	if rule.Terminal {
		return fmt.Errorf("%w: %s", ErrTerminalStage, current)
	}

	if actorRole != rule.RequiredRole {
		return fmt.Errorf("%w: %s requires %s, got %s", ErrWrongRole, current, rule.RequiredRole, actorRole)
	}

	if !rule.Allows(target) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current, target)
	}

	return nil
}
