package lifecycle

import "fmt"

// transitions is the single table of legal (state, trigger) pairs.
// PENDING is the only non-terminal origin besides APPROVED; REJECTED and
// PAID accept nothing, so re-firing a settled target fails loudly instead
// of silently re-stamping timestamps.
var transitions = map[State]map[Trigger]State{
	StatePending: {
		TriggerApprove: StateApproved,
		TriggerReject:  StateRejected,
	},
	StateApproved: {
		TriggerPay: StatePaid,
	},
}

// CanFire returns true if the trigger is permitted in the given state
func CanFire(from State, trigger Trigger) bool {
	_, ok := transitions[from][trigger]
	return ok
}

// Next returns the state reached by firing the trigger from the given state.
// It fails with ErrInvalidState for unknown states and ErrInvalidTransition
// for any pair outside the table.
func Next(from State, trigger Trigger) (State, error) {
	if !from.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidState, from)
	}

	to, ok := transitions[from][trigger]
	if !ok {
		return "", fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, from)
	}
	return to, nil
}

// PermittedTriggers returns all triggers that can be fired in the given state
func PermittedTriggers(from State) []Trigger {
	permitted := transitions[from]
	triggers := make([]Trigger, 0, len(permitted))
	for trigger := range permitted {
		triggers = append(triggers, trigger)
	}
	return triggers
}
