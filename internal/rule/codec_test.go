package rule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
)

type glucoseEnv struct {
	condition.Env
	gs condition.GlucoseStatus
}

func (g glucoseEnv) GlucoseStatus() (condition.GlucoseStatus, bool) { return g.gs, true }

func TestSeed(t *testing.T) {
	r, err := Seed()
	require.NoError(t, err)
	assert.Equal(t, "Low", r.Title)
	assert.True(t, r.Enabled)
	assert.NotEmpty(t, r.ID)

	c, ok := r.Trigger.(*condition.Connector)
	require.True(t, ok)
	assert.Equal(t, condition.And, c.Type)
	require.Len(t, c.Children, 2)
	assert.IsType(t, &condition.Bg{}, c.Children[0])
	assert.IsType(t, &condition.Delta{}, c.Children[1])

	require.Len(t, r.Actions, 1)
	tt, ok := r.Actions[0].(*action.StartTempTarget)
	require.True(t, ok)
	assert.Equal(t, 8.0, tt.Value)
	assert.Equal(t, 60, tt.DurationMinutes)
}

func TestSeed_Candidate(t *testing.T) {
	r, err := Seed()
	require.NoError(t, err)

	low := glucoseEnv{gs: condition.GlucoseStatus{Glucose: 3.8 * 18, Delta: -0.2 * 18}}
	assert.True(t, r.Candidate(condition.EvalContext{Env: low, Now: time.Now()}))

	rising := glucoseEnv{gs: condition.GlucoseStatus{Glucose: 3.8 * 18, Delta: 0.5}}
	assert.False(t, r.Candidate(condition.EvalContext{Env: rising, Now: time.Now()}))
}

func sampleRules() []Rule {
	a := New("Bedtime")
	a.SystemAction = true
	a.AutoRemove = true
	a.Trigger = condition.NewConnector(condition.Or,
		&condition.TimeRange{Start: 22 * 60, End: 23 * 60},
		condition.NewConnector(condition.And, &condition.WifiSsid{SSID: "home", Comparator: condition.IsEqual}),
	)
	a.Preconditions = condition.NewConnector(condition.And, &condition.Iob{Insulin: 1, Comparator: condition.IsLesser})
	a.Actions = []action.Action{
		&action.Notification{Text: "check sensor"},
		&action.StopProcessing{},
	}
	a.LastRun = time.UnixMilli(1767225600000)

	b := New("Button")
	b.UserAction = true
	b.Enabled = false
	b.Actions = []action.Action{&action.ProfileSwitchPercent{Percentage: 80, DurationMinutes: 120}}
	return []Rule{a, b}
}

func TestDocument_RoundTrip(t *testing.T) {
	in := sampleRules()
	s, err := EncodeDocument(in)
	require.NoError(t, err)

	out, err := DecodeDocument(s)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	for i := range in {
		want, err := ToDocument(in[i])
		require.NoError(t, err)
		got, err := ToDocument(out[i])
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, i, out[i].Position)
		assert.NotEqual(t, in[i].ID, out[i].ID, "IDs are runtime-only")
	}
	assert.True(t, out[0].LastRun.Equal(in[0].LastRun))
	assert.True(t, out[0].HasStopProcessing())
	assert.False(t, out[1].HasStopProcessing())

	again, err := EncodeDocument(out)
	require.NoError(t, err)
	assert.JSONEq(t, s, again)
}

func TestDocument_EmptyPreconditionsOmitted(t *testing.T) {
	d, err := ToDocument(New("x"))
	require.NoError(t, err)
	assert.Empty(t, d.Preconditions)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "preconditions")
	assert.NotContains(t, string(b), "lastRun")
}

func TestDecodeDocument_PartialLoad(t *testing.T) {
	good, err := EncodeDocument(sampleRules()[:1])
	require.NoError(t, err)
	// Append a rule whose trigger names an unknown kind, then a valid one.
	var docs []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(good), &docs))
	docs = append(docs,
		json.RawMessage(`{"title":"broken","enabled":true,"trigger":"{\"type\":\"TriggerWeather\",\"data\":{}}","actions":[]}`),
		json.RawMessage(SeedDocument),
	)
	b, err := json.Marshal(docs)
	require.NoError(t, err)

	rules, err := DecodeDocument(string(b))
	require.Error(t, err)
	assert.ErrorIs(t, err, condition.ErrUnknownKind)
	require.Len(t, rules, 1)
	assert.Equal(t, "Bedtime", rules[0].Title)
}

func TestDecodeDocument_Garbage(t *testing.T) {
	rules, err := DecodeDocument("not json")
	assert.Error(t, err)
	assert.Empty(t, rules)
}

func TestClone_SharesNothing(t *testing.T) {
	r := sampleRules()[0]
	c := r.Clone()
	c.Actions[0].(*action.Notification).Text = "changed"
	c.Trigger.(*condition.Connector).Type = condition.Xor

	assert.Equal(t, "check sensor", r.Actions[0].(*action.Notification).Text)
	assert.Equal(t, condition.Or, r.Trigger.(*condition.Connector).Type)
	assert.Equal(t, r.ID, c.ID)
}
