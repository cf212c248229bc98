package action

import (
	"context"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/automation/internal/condition"
)

// Temp target bounds, in mg/dL.
const (
	MinTempTargetMgdl = 72.0
	MaxTempTargetMgdl = 180.0
)

// StartTempTarget sets a temporary glucose target.
type StartTempTarget struct {
	titled
	Value           float64         `json:"value"`
	Units           condition.Units `json:"units"`
	DurationMinutes int             `json:"durationInMinutes"`
	Reason          string          `json:"reason,omitempty"`
}

func (a *StartTempTarget) Kind() string { return "ActionStartTempTarget" }

func (a *StartTempTarget) SetUnits(u condition.Units) { a.Units = u }

func (a *StartTempTarget) Valid() bool {
	v := condition.ToMgdl(a.Value, a.Units)
	return a.DurationMinutes > 0 && v >= MinTempTargetMgdl && v <= MaxTempTargetMgdl
}

func (a *StartTempTarget) ShortDescription() string {
	return fmt.Sprintf("Start temp target: %g %s@%d min", a.Value, a.Units, a.DurationMinutes)
}

func (a *StartTempTarget) Do(ctx context.Context, svc Services, done func(Result)) {
	v := condition.ToMgdl(a.Value, a.Units)
	tt := condition.TempTarget{
		Low:      v,
		High:     v,
		Start:    time.Now(),
		Duration: time.Duration(a.DurationMinutes) * time.Minute,
		Reason:   a.Reason,
	}
	dispatch(done, func() (string, error) { return "", svc.StartTempTarget(ctx, tt) })
}

// StopTempTarget cancels any active temp target.
type StopTempTarget struct {
	titled
}

func (a *StopTempTarget) Kind() string             { return "ActionStopTempTarget" }
func (a *StopTempTarget) Valid() bool              { return true }
func (a *StopTempTarget) ShortDescription() string { return "Stop temp target" }

func (a *StopTempTarget) Do(ctx context.Context, svc Services, done func(Result)) {
	dispatch(done, func() (string, error) { return "", svc.StopTempTarget(ctx) })
}

// Notification raises a user notification.
type Notification struct {
	titled
	Text string `json:"text"`
}

func (a *Notification) Kind() string             { return "ActionNotification" }
func (a *Notification) Valid() bool              { return a.Text != "" }
func (a *Notification) ShortDescription() string { return "Notification: " + a.Text }

func (a *Notification) Do(ctx context.Context, svc Services, done func(Result)) {
	dispatch(done, func() (string, error) { return "", svc.Notify(ctx, a.Text) })
}

// Alarm raises an audible alarm.
type Alarm struct {
	titled
	Text string `json:"text"`
}

func (a *Alarm) Kind() string             { return "ActionAlarm" }
func (a *Alarm) Valid() bool              { return a.Text != "" }
func (a *Alarm) ShortDescription() string { return "Alarm: " + a.Text }

func (a *Alarm) Do(ctx context.Context, svc Services, done func(Result)) {
	dispatch(done, func() (string, error) { return "", svc.Alarm(ctx, a.Text) })
}

// CarePortalType is the careportal event variant.
type CarePortalType string

const (
	CarePortalNote         CarePortalType = "NOTE"
	CarePortalExercise     CarePortalType = "EXERCISE"
	CarePortalQuestion     CarePortalType = "QUESTION"
	CarePortalAnnouncement CarePortalType = "ANNOUNCEMENT"
)

// CarePortalEvent records a careportal entry.
type CarePortalEvent struct {
	titled
	EventType       CarePortalType `json:"cpEvent"`
	Note            string         `json:"note"`
	DurationMinutes int            `json:"durationInMinutes"`
}

func (a *CarePortalEvent) Kind() string { return "ActionCarePortalEvent" }

func (a *CarePortalEvent) Valid() bool {
	switch a.EventType {
	case CarePortalNote, CarePortalExercise, CarePortalQuestion, CarePortalAnnouncement:
		return a.DurationMinutes >= 0
	}
	return false
}

func (a *CarePortalEvent) ShortDescription() string {
	return fmt.Sprintf("Careportal %s: %s", a.EventType, a.Note)
}

func (a *CarePortalEvent) Do(ctx context.Context, svc Services, done func(Result)) {
	entry := CarePortalEntry{
		EventType: a.EventType,
		Note:      a.Note,
		Duration:  time.Duration(a.DurationMinutes) * time.Minute,
	}
	dispatch(done, func() (string, error) { return "", svc.CarePortal(ctx, entry) })
}

// ProfileSwitch activates a profile by name.
type ProfileSwitch struct {
	titled
	Profile string `json:"profileToSwitchTo"`
}

func (a *ProfileSwitch) Kind() string             { return "ActionProfileSwitch" }
func (a *ProfileSwitch) Valid() bool              { return a.Profile != "" }
func (a *ProfileSwitch) ShortDescription() string { return "Change profile to " + a.Profile }

func (a *ProfileSwitch) Do(ctx context.Context, svc Services, done func(Result)) {
	dispatch(done, func() (string, error) { return "", svc.SwitchProfile(ctx, a.Profile) })
}

// ProfileSwitchPercent scales the active profile for a while.
type ProfileSwitchPercent struct {
	titled
	Percentage      int `json:"percentage"`
	DurationMinutes int `json:"durationInMinutes"`
}

func (a *ProfileSwitchPercent) Kind() string { return "ActionProfileSwitchPercent" }

func (a *ProfileSwitchPercent) Valid() bool {
	return a.Percentage >= 70 && a.Percentage <= 130 && a.DurationMinutes >= 0
}

func (a *ProfileSwitchPercent) ShortDescription() string {
	if a.DurationMinutes == 0 {
		return fmt.Sprintf("Start profile %d%%", a.Percentage)
	}
	return fmt.Sprintf("Start profile %d%% for %d min", a.Percentage, a.DurationMinutes)
}

func (a *ProfileSwitchPercent) Do(ctx context.Context, svc Services, done func(Result)) {
	d := time.Duration(a.DurationMinutes) * time.Minute
	dispatch(done, func() (string, error) { return "", svc.SwitchProfilePercent(ctx, a.Percentage, d) })
}

// RunAutotune starts an autotune run. An empty profile tunes the active one.
type RunAutotune struct {
	titled
	Profile string `json:"profileToTune"`
	Days    int    `json:"tunedays"`
}

func (a *RunAutotune) Kind() string { return "ActionRunAutotune" }
func (a *RunAutotune) Valid() bool  { return a.Days >= 1 && a.Days <= 30 }

func (a *RunAutotune) ShortDescription() string {
	p := a.Profile
	if p == "" {
		p = "active profile"
	}
	return fmt.Sprintf("Autotune %s (%d days)", p, a.Days)
}

func (a *RunAutotune) Do(ctx context.Context, svc Services, done func(Result)) {
	dispatch(done, func() (string, error) { return svc.RunAutotune(ctx, a.Profile, a.Days) })
}

// SendSMS texts the configured recipients.
type SendSMS struct {
	titled
	Text string `json:"text"`
}

func (a *SendSMS) Kind() string             { return "ActionSendSMS" }
func (a *SendSMS) Valid() bool              { return a.Text != "" }
func (a *SendSMS) ShortDescription() string { return "Send SMS: " + a.Text }

func (a *SendSMS) Do(ctx context.Context, svc Services, done func(Result)) {
	dispatch(done, func() (string, error) { return "", svc.SendSMS(ctx, a.Text) })
}

// StopProcessing ends the current pass once it has run: rules after the
// owning rule are not evaluated.
type StopProcessing struct {
	titled
}

func (a *StopProcessing) Kind() string             { return "ActionStopProcessing" }
func (a *StopProcessing) Valid() bool              { return true }
func (a *StopProcessing) ShortDescription() string { return "Stop processing" }

func (a *StopProcessing) Do(_ context.Context, _ Services, done func(Result)) {
	dispatch(done, func() (string, error) { return "Stopped", nil })
}
