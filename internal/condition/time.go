package condition

import (
	"fmt"
	"time"
)

// fireWindow is how long after a scheduled instant a time trigger still fires.
const fireWindow = 5 * time.Minute

// Time fires once, within fireWindow after RunAt.
type Time struct {
	RunAt int64 `json:"runAt"` // unix millis
}

func (t *Time) Kind() string { return "TriggerTime" }

func (t *Time) ShouldRun(ctx *EvalContext) bool {
	at := time.UnixMilli(t.RunAt)
	if !ctx.LastRun.Before(at) {
		return false
	}
	return !ctx.Now.Before(at) && ctx.Now.Sub(at) < fireWindow
}

func (t *Time) FriendlyDescription() string {
	return "At " + time.UnixMilli(t.RunAt).Format("2006-01-02 15:04")
}

// RecurringTime fires on selected weekdays at a minute of the day.
type RecurringTime struct {
	Monday    bool `json:"monday"`
	Tuesday   bool `json:"tuesday"`
	Wednesday bool `json:"wednesday"`
	Thursday  bool `json:"thursday"`
	Friday    bool `json:"friday"`
	Saturday  bool `json:"saturday"`
	Sunday    bool `json:"sunday"`
	Minute    int  `json:"time"` // minutes since local midnight
}

func (t *RecurringTime) Kind() string { return "TriggerRecurringTime" }

func (t *RecurringTime) day(d time.Weekday) bool {
	switch d {
	case time.Monday:
		return t.Monday
	case time.Tuesday:
		return t.Tuesday
	case time.Wednesday:
		return t.Wednesday
	case time.Thursday:
		return t.Thursday
	case time.Friday:
		return t.Friday
	case time.Saturday:
		return t.Saturday
	}
	return t.Sunday
}

func (t *RecurringTime) ShouldRun(ctx *EvalContext) bool {
	now := ctx.Now
	if !t.day(now.Weekday()) {
		return false
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	scheduled := midnight.Add(time.Duration(t.Minute) * time.Minute)
	if now.Before(scheduled) || now.Sub(scheduled) >= fireWindow {
		return false
	}
	return ctx.LastRun.Before(scheduled)
}

func (t *RecurringTime) FriendlyDescription() string {
	days := ""
	for _, d := range []struct {
		on   bool
		name string
	}{
		{t.Monday, "Mo"}, {t.Tuesday, "Tu"}, {t.Wednesday, "We"}, {t.Thursday, "Th"},
		{t.Friday, "Fr"}, {t.Saturday, "Sa"}, {t.Sunday, "Su"},
	} {
		if d.on {
			days += d.name + " "
		}
	}
	if days == "" {
		days = "never "
	}
	return fmt.Sprintf("Recurring %sat %02d:%02d", days, t.Minute/60, t.Minute%60)
}

// TimeRange holds while the local time of day lies in [Start, End). A range
// with End before Start wraps past midnight.
type TimeRange struct {
	Start int `json:"start"` // minutes since midnight
	End   int `json:"end"`
}

func (t *TimeRange) Kind() string { return "TriggerTimeRange" }

func (t *TimeRange) ShouldRun(ctx *EvalContext) bool {
	m := ctx.Now.Hour()*60 + ctx.Now.Minute()
	if t.Start <= t.End {
		return m >= t.Start && m < t.End
	}
	return m >= t.Start || m < t.End
}

func (t *TimeRange) FriendlyDescription() string {
	return fmt.Sprintf("Time is between %02d:%02d and %02d:%02d", t.Start/60, t.Start%60, t.End/60, t.End%60)
}
