// Package rule defines the automation Rule and its persisted document form.
package rule

import (
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
)

// Rule is one "if trigger and preconditions hold, run these actions" entry.
//
// Title is the identity used by AddIfNotExists/RemoveIfExists. ID is a
// runtime handle (not persisted) identifying this particular value across
// snapshots.
type Rule struct {
	ID            string
	Title         string
	Enabled       bool
	UserAction    bool // run only on explicit invocation, never by the scheduler
	SystemAction  bool // exempt from the gate
	AutoRemove    bool // removed from the store after it fires once
	ReadOnly      bool
	Position      int // advisory; list order is authoritative
	Trigger       condition.Trigger
	Preconditions condition.Trigger
	Actions       []action.Action
	LastRun       time.Time
}

// New returns an enabled rule with empty AND trees and a fresh ID.
func New(title string) Rule {
	return Rule{
		ID:            uuid.New().String(),
		Title:         title,
		Enabled:       true,
		Trigger:       condition.NewConnector(condition.And),
		Preconditions: condition.NewConnector(condition.And),
	}
}

// Candidate reports whether both trees hold against ctx. The rule's LastRun
// is supplied to the trees.
func (r Rule) Candidate(ctx condition.EvalContext) bool {
	ctx.LastRun = r.LastRun
	return tree(r.Trigger).ShouldRun(&ctx) && tree(r.Preconditions).ShouldRun(&ctx)
}

// HasStopProcessing reports whether the action list contains a stop-processing action.
func (r Rule) HasStopProcessing() bool {
	for _, a := range r.Actions {
		if _, ok := a.(*action.StopProcessing); ok {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares no tree or action nodes with r.
func (r Rule) Clone() Rule {
	out := r
	out.Trigger = cloneTree(r.Trigger)
	out.Preconditions = cloneTree(r.Preconditions)
	out.Actions = make([]action.Action, 0, len(r.Actions))
	for _, a := range r.Actions {
		out.Actions = append(out.Actions, cloneAction(a))
	}
	return out
}

func tree(t condition.Trigger) condition.Trigger {
	if t == nil {
		return condition.NewConnector(condition.And)
	}
	return t
}

func cloneTree(t condition.Trigger) condition.Trigger {
	if t == nil {
		return nil
	}
	s, err := condition.Encode(t)
	if err != nil {
		return t
	}
	c, err := condition.Decode(s)
	if err != nil {
		return t
	}
	return c
}

func cloneAction(a action.Action) action.Action {
	s, err := action.Encode(a)
	if err != nil {
		return a
	}
	c, err := action.Decode(s)
	if err != nil {
		return a
	}
	c.SetTitle(a.Title())
	return c
}
