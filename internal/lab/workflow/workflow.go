// Package workflow holds the unified request state machine.
//
// It is pure: callers load the request, ask Authorize then Check, and perform
// the write themselves as a compare-and-set on the expected status.
package workflow

import (
	"github.com/Async-Ng/ElecLab-sub001/internal/apperr"
	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
)

// Action is an operation on an existing request
type Action string

const (
	ActionReview   Action = "review"
	ActionHandle   Action = "handle"
	ActionComplete Action = "complete"
	ActionEdit     Action = "edit"
	ActionDelete   Action = "delete"
)

// StatusDeleted is the pseudo target of ActionDelete; it is never persisted.
const StatusDeleted entity.RequestStatus = "deleted"

// Actor is who may perform a transition
type Actor int

const (
	ActorElevated Actor = iota + 1
	ActorCreator
)

// Transition is one edge of the lifecycle graph
type Transition struct {
	Action       Action
	From         entity.RequestStatus
	To           entity.RequestStatus
	Actor        Actor
	MaterialOnly bool
}

var transitions = []Transition{
	{ActionReview, entity.RequestStatusPending, entity.RequestStatusApproved, ActorElevated, false},
	{ActionReview, entity.RequestStatusPending, entity.RequestStatusRejected, ActorElevated, false},
	{ActionHandle, entity.RequestStatusApproved, entity.RequestStatusProcessing, ActorElevated, true},
	{ActionComplete, entity.RequestStatusProcessing, entity.RequestStatusCompleted, ActorElevated, true},
	{ActionDelete, entity.RequestStatusPending, StatusDeleted, ActorCreator, false},
	{ActionEdit, entity.RequestStatusPending, entity.RequestStatusPending, ActorCreator, false},
}

// Transitions returns a copy of the transition table
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// Target returns the fixed target status of action. Review has two targets
// and reports ok == false; its target comes from the caller.
func Target(action Action) (entity.RequestStatus, bool) {
	switch action {
	case ActionHandle:
		return entity.RequestStatusProcessing, true
	case ActionComplete:
		return entity.RequestStatusCompleted, true
	case ActionEdit:
		return entity.RequestStatusPending, true
	case ActionDelete:
		return StatusDeleted, true
	}
	return "", false
}

func actorOf(action Action) Actor {
	switch action {
	case ActionEdit, ActionDelete:
		return ActorCreator
	}
	return ActorElevated
}

// Policy holds the tunable parts of authorization
type Policy struct {
	// AllowSelfReview lets an elevated requester review and process their own request
	AllowSelfReview bool
}

// DefaultPolicy permits self review
func DefaultPolicy() Policy {
	return Policy{AllowSelfReview: true}
}

// Authorize checks that caller may perform action on a request created by
// requesterID. It runs before any status check.
func (p Policy) Authorize(caller identity.Identity, action Action, requesterID string) error {
	switch actorOf(action) {
	case ActorCreator:
		if caller.UserID == "" || caller.UserID != requesterID {
			return apperr.Authorization("only the requester may %s this request", action)
		}
	default:
		if !caller.Elevated() {
			return apperr.Authorization("%s requires an elevated role", action)
		}
		if !p.AllowSelfReview && caller.UserID == requesterID {
			return apperr.Authorization("%s of one's own request is not allowed", action)
		}
	}
	return nil
}

// Check validates moving a request of family from status from to status to
// by action. Anything outside the table is a validation error naming from -> to.
func Check(action Action, family entity.Family, from, to entity.RequestStatus) error {
	for _, t := range transitions {
		if t.Action != action || t.From != from || t.To != to {
			continue
		}
		if t.MaterialOnly && family != entity.FamilyMaterial {
			return apperr.Validation("illegal transition %s -> %s: %s requests cannot enter %s", from, to, family, to)
		}
		return nil
	}
	return apperr.Validation("illegal transition %s -> %s (%s)", from, to, action)
}

// Next lists the transitions available from status for family
func Next(family entity.Family, from entity.RequestStatus) []Transition {
	var out []Transition
	for _, t := range transitions {
		if t.From != from {
			continue
		}
		if t.MaterialOnly && family != entity.FamilyMaterial {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Terminal reports whether no transition leaves status for family
func Terminal(family entity.Family, status entity.RequestStatus) bool {
	return len(Next(family, status)) == 0
}
