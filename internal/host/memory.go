package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
)

// Glucose is the latest reading, in mg/dL.
type Glucose struct {
	Value         float64   `json:"value"`
	Delta         float64   `json:"delta"`
	ShortAvgDelta float64   `json:"short_avg_delta"`
	LongAvgDelta  float64   `json:"long_avg_delta"`
	Timestamp     time.Time `json:"timestamp"`
}

// Target is a temp target, in mg/dL. A zero duration never expires.
type Target struct {
	Low             float64   `json:"low"`
	High            float64   `json:"high"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Reason          string    `json:"reason,omitempty"`
}

// Position is a geographic fix.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// State is everything the in-process host knows. Pointer fields are
// optional readings; nil means "not available".
type State struct {
	Glucose            *Glucose   `json:"glucose,omitempty"`
	IOB                float64    `json:"iob"`
	COB                *float64   `json:"cob,omitempty"`
	Profile            string     `json:"profile"`
	Profiles           []string   `json:"profiles"`
	ProfilePercent     *int       `json:"profile_percent,omitempty"`
	TempTarget         *Target    `json:"temp_target,omitempty"`
	WifiSSID           string     `json:"wifi_ssid,omitempty"`
	Location           *Position  `json:"location,omitempty"`
	PreviousLocation   *Position  `json:"previous_location,omitempty"`
	AutosensRatio      *float64   `json:"autosens_ratio,omitempty"`
	LastBolus          *time.Time `json:"last_bolus,omitempty"`
	PumpLastConnection *time.Time `json:"pump_last_connection,omitempty"`
	Charging           bool       `json:"charging"`
	// Units is the user's display unit. New rule templates use it.
	Units condition.Units `json:"units"`

	LoopEnabled       bool   `json:"loop_enabled"`
	LoopSuspended     bool   `json:"loop_suspended"`
	LoopDisconnected  bool   `json:"loop_disconnected"`
	PumpSuspended     bool   `json:"pump_suspended"`
	AutomationAllowed bool   `json:"automation_allowed"`
	ConstraintReason  string `json:"constraint_reason,omitempty"`
}

// DefaultState is a running loop with automation allowed and no readings.
func DefaultState() State {
	pct := 100
	return State{
		Profile:           "Default",
		Profiles:          []string{"Default"},
		ProfilePercent:    &pct,
		Units:             condition.UnitsMgdl,
		LoopEnabled:       true,
		AutomationAllowed: true,
	}
}

// Memory is a concurrency-safe in-process host. It serves as the leaf
// triggers' Env, the gate's status sources and the actions' Services.
type Memory struct {
	mu      sync.RWMutex
	state   State
	now     func() time.Time
	sent    []string // notifications, alarms and SMS in dispatch order
	entries []action.CarePortalEntry
	logger  *slog.Logger
}

// NewMemory returns a Memory holding st.
func NewMemory(st State, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{state: st, now: time.Now, logger: logger}
}

// State returns a copy of the current state.
func (m *Memory) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Update mutates the state under the lock.
func (m *Memory) Update(fn func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

// Patch merges a JSON object into the state; absent keys keep their value.
func (m *Memory) Patch(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Round-trip first so the patch never writes through shared pointers.
	cur, err := json.Marshal(m.state)
	if err != nil {
		return fmt.Errorf("patch host state: %w", err)
	}
	var next State
	if err := json.Unmarshal(cur, &next); err != nil {
		return fmt.Errorf("patch host state: %w", err)
	}
	if err := json.Unmarshal(b, &next); err != nil {
		return fmt.Errorf("patch host state: %w", err)
	}
	m.state = next
	return nil
}

// SetLocation records a new fix, keeping the previous one for
// entering/leaving checks.
func (m *Memory) SetLocation(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PreviousLocation = m.state.Location
	m.state.Location = &p
}

// Sent returns the notifications, alarms and SMS dispatched so far.
func (m *Memory) Sent() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sent)
}

// CarePortalEntries returns the careportal entries recorded so far.
func (m *Memory) CarePortalEntries() []action.CarePortalEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.entries)
}

// ---- condition.Env ----

var _ condition.Env = (*Memory)(nil)

func (m *Memory) GlucoseStatus() (condition.GlucoseStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g := m.state.Glucose
	if g == nil {
		return condition.GlucoseStatus{}, false
	}
	return condition.GlucoseStatus{
		Glucose:       g.Value,
		Delta:         g.Delta,
		ShortAvgDelta: g.ShortAvgDelta,
		LongAvgDelta:  g.LongAvgDelta,
		Timestamp:     g.Timestamp,
	}, true
}

func (m *Memory) IOB() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IOB
}

func (m *Memory) COB() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.COB == nil {
		return 0, false
	}
	return *m.state.COB, true
}

func (m *Memory) ProfilePercent() (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.ProfilePercent == nil {
		return 0, false
	}
	return *m.state.ProfilePercent, true
}

func (m *Memory) TempTarget() (condition.TempTarget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.state.TempTarget
	if t == nil {
		return condition.TempTarget{}, false
	}
	d := time.Duration(t.DurationMinutes) * time.Minute
	if d > 0 && !m.now().Before(t.Start.Add(d)) {
		return condition.TempTarget{}, false
	}
	return condition.TempTarget{Low: t.Low, High: t.High, Start: t.Start, Duration: d, Reason: t.Reason}, true
}

func (m *Memory) WifiSSID() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.WifiSSID, m.state.WifiSSID != ""
}

func (m *Memory) Location() (condition.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return toLocation(m.state.Location)
}

func (m *Memory) PreviousLocation() (condition.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return toLocation(m.state.PreviousLocation)
}

func toLocation(p *Position) (condition.Location, bool) {
	if p == nil {
		return condition.Location{}, false
	}
	return condition.Location{Latitude: p.Latitude, Longitude: p.Longitude}, true
}

func (m *Memory) AutosensRatio() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.AutosensRatio == nil {
		return 0, false
	}
	return *m.state.AutosensRatio, true
}

func (m *Memory) LastBolusTime() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.LastBolus == nil {
		return time.Time{}, false
	}
	return *m.state.LastBolus, true
}

func (m *Memory) PumpLastConnection() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.PumpLastConnection == nil {
		return time.Time{}, false
	}
	return *m.state.PumpLastConnection, true
}

// ---- status sources ----

type loopView struct{ m *Memory }

func (v loopView) IsSuspended() bool    { return v.m.State().LoopSuspended }
func (v loopView) IsDisconnected() bool { return v.m.State().LoopDisconnected }
func (v loopView) IsEnabled() bool      { return v.m.State().LoopEnabled }

type pumpView struct{ m *Memory }

func (v pumpView) IsSuspended() bool { return v.m.State().PumpSuspended }

// Loop exposes the loop status.
func (m *Memory) Loop() LoopStatus { return loopView{m} }

// Pump exposes the pump status.
func (m *Memory) Pump() PumpStatus { return pumpView{m} }

// IsAutomationEnabled implements ConstraintChecker.
func (m *Memory) IsAutomationEnabled() (bool, string) {
	st := m.State()
	if st.AutomationAllowed {
		return true, ""
	}
	reason := st.ConstraintReason
	if reason == "" {
		reason = "Automation disabled by constraint"
	}
	return false, reason
}

// ---- action.Services ----

var _ action.Services = (*Memory)(nil)

func (m *Memory) StartTempTarget(_ context.Context, tt condition.TempTarget) error {
	m.Update(func(s *State) {
		s.TempTarget = &Target{
			Low:             tt.Low,
			High:            tt.High,
			Start:           tt.Start,
			DurationMinutes: int(tt.Duration / time.Minute),
			Reason:          tt.Reason,
		}
	})
	m.logger.Info("temp target started", "target_mgdl", tt.Target(), "duration", tt.Duration)
	return nil
}

func (m *Memory) StopTempTarget(context.Context) error {
	m.Update(func(s *State) { s.TempTarget = nil })
	m.logger.Info("temp target stopped")
	return nil
}

func (m *Memory) record(kind, text string) {
	m.mu.Lock()
	m.sent = append(m.sent, kind+": "+text)
	m.mu.Unlock()
	m.logger.Info("host message", "kind", kind, "text", text)
}

func (m *Memory) Notify(_ context.Context, text string) error {
	m.record("notification", text)
	return nil
}

func (m *Memory) Alarm(_ context.Context, text string) error {
	m.record("alarm", text)
	return nil
}

func (m *Memory) SendSMS(_ context.Context, text string) error {
	m.record("sms", text)
	return nil
}

func (m *Memory) CarePortal(_ context.Context, entry action.CarePortalEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) SwitchProfile(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.state.Profiles, name) {
		return fmt.Errorf("profile %q not found", name)
	}
	m.state.Profile = name
	pct := 100
	m.state.ProfilePercent = &pct
	return nil
}

func (m *Memory) SwitchProfilePercent(_ context.Context, percentage int, _ time.Duration) error {
	m.Update(func(s *State) { s.ProfilePercent = &percentage })
	return nil
}

func (m *Memory) RunAutotune(_ context.Context, profile string, days int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if profile == "" {
		profile = m.state.Profile
	}
	if !slices.Contains(m.state.Profiles, profile) {
		return "", fmt.Errorf("profile %q not found", profile)
	}
	return fmt.Sprintf("Autotune of %s over %d days queued", profile, days), nil
}
