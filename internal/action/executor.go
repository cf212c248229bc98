package action

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/gyaneshwarpardhi/automation/internal/condition"
)

// Result is the outcome an action reports once its asynchronous work ends.
type Result struct {
	Success bool   `json:"success"`
	Comment string `json:"comment"`
}

// Action is one step of a rule's action list.
type Action interface {
	// Kind returns the type tag this action is serialized under.
	Kind() string
	// Title is the owning rule's title, stamped at dispatch time.
	Title() string
	SetTitle(title string)
	// Valid reports whether the configured action can be dispatched.
	Valid() bool
	// ShortDescription renders the action for the execution log.
	ShortDescription() string
	// Do starts the action and returns immediately. done is called exactly
	// once, from another goroutine, when the action finishes.
	Do(ctx context.Context, svc Services, done func(Result))
}

// CarePortalEntry is a careportal record created by ActionCarePortalEvent.
type CarePortalEntry struct {
	EventType CarePortalType
	Note      string
	Duration  time.Duration
}

// Services are the host capabilities actions dispatch into.
type Services interface {
	StartTempTarget(ctx context.Context, tt condition.TempTarget) error
	StopTempTarget(ctx context.Context) error
	Notify(ctx context.Context, text string) error
	Alarm(ctx context.Context, text string) error
	CarePortal(ctx context.Context, entry CarePortalEntry) error
	SwitchProfile(ctx context.Context, name string) error
	SwitchProfilePercent(ctx context.Context, percentage int, duration time.Duration) error
	RunAutotune(ctx context.Context, profile string, days int) (string, error)
	SendSMS(ctx context.Context, text string) error
}

// titled carries the dispatch-time title shared by every action.
type titled struct {
	title string
}

func (t *titled) Title() string         { return t.title }
func (t *titled) SetTitle(title string) { t.title = title }

// dispatch runs fn on its own goroutine and reports through done. A panic in
// fn is reported as a failed result.
func dispatch(done func(Result), fn func() (string, error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("action panicked", "panic", r, "stack", string(debug.Stack()))
				done(Result{Success: false, Comment: fmt.Sprint(r)})
			}
		}()
		comment, err := fn()
		if err != nil {
			done(Result{Success: false, Comment: err.Error()})
			return
		}
		if comment == "" {
			comment = "OK"
		}
		done(Result{Success: true, Comment: comment})
	}()
}
