package scheduling

// Action is a doctor-initiated change of appointment status.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
	ActionComplete   Action = "complete"
)

type transition struct {
	from []Status
	to   Status
}

var transitions = map[Action]transition{
	ActionConfirm:    {from: []Status{StatusRequested}, to: StatusConfirmed},
	ActionCancel:     {from: []Status{StatusRequested, StatusConfirmed, StatusRescheduled}, to: StatusCancelled},
	ActionReschedule: {from: []Status{StatusConfirmed}, to: StatusRescheduled},
	ActionComplete:   {from: []Status{StatusConfirmed}, to: StatusCompleted},
}

// CanTransition reports whether action is legal from status. The legacy
// pending alias behaves as requested.
func CanTransition(status Status, action Action) bool {
	if s, ok := ParseStatus(string(status)); ok {
		status = s
	}
	tr, ok := transitions[action]
	if !ok {
		return false
	}
	for _, f := range tr.from {
		if f == status {
			return true
		}
	}
	return false
}

// transitionError picks the error reported when action is not legal from
// current.
func transitionError(current Status, action Action) error {
	if action == ActionCancel && current.Terminal() {
		return ErrAlreadyTerminal
	}
	return ErrInvalidTransition
}

// fromStates returns the stored statuses action may start from. The legacy
// alias is included so rows not yet migrated still transition.
func fromStates(action Action) []Status {
	tr := transitions[action]
	out := make([]Status, 0, len(tr.from)+1)
	for _, s := range tr.from {
		out = append(out, s)
		if s == StatusRequested {
			out = append(out, StatusPending)
		}
	}
	return out
}
