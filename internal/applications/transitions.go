package applications

import (
	"strings"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
)

// Action is a state machine input.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReturn  Action = "return"
)

type transition struct {
	from []models.ApplicationStatus
	to   models.ApplicationStatus
}

// transitions is the complete approval state machine. Approved and rejected
// have no outgoing edges.
var transitions = map[Action]transition{
	ActionSubmit:  {from: []models.ApplicationStatus{models.StatusDraft, models.StatusReturned}, to: models.StatusPending},
	ActionApprove: {from: []models.ApplicationStatus{models.StatusPending}, to: models.StatusApproved},
	ActionReject:  {from: []models.ApplicationStatus{models.StatusPending}, to: models.StatusRejected},
	ActionReturn:  {from: []models.ApplicationStatus{models.StatusPending}, to: models.StatusReturned},
}

// Next returns the state reached by applying action in state from.
func Next(from models.ApplicationStatus, action Action) (models.ApplicationStatus, error) {
	t, ok := transitions[action]
	if !ok {
		return "", apperr.Validation(string(action), "unknown action")
	}
	for _, s := range t.from {
		if s == from {
			return t.to, nil
		}
	}
	if from.Terminal() {
		return "", apperr.InvalidTransition(string(action), "application is already %s and can no longer change", from)
	}
	return "", apperr.InvalidTransition(string(action), "cannot %s an application in status %s", action, from)
}

// Sources returns the states action may be applied in.
func Sources(action Action) []models.ApplicationStatus {
	return transitions[action].from
}

// ParseOutcome maps a decision outcome to its action. Both the verb and the
// resulting status are accepted ("reject" and "rejected").
func ParseOutcome(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return ActionApprove, nil
	case "reject", "rejected":
		return ActionReject, nil
	case "return", "returned":
		return ActionReturn, nil
	}
	return "", apperr.Validation("decide", "outcome must be approved, rejected or returned")
}

// IsDecision reports whether action is an approver decision.
func IsDecision(a Action) bool {
	return a == ActionApprove || a == ActionReject || a == ActionReturn
}
