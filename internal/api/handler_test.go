package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
	"github.com/gyaneshwarpardhi/automation/internal/engine"
	"github.com/gyaneshwarpardhi/automation/internal/event"
	"github.com/gyaneshwarpardhi/automation/internal/execlog"
	"github.com/gyaneshwarpardhi/automation/internal/host"
	"github.com/gyaneshwarpardhi/automation/internal/kv"
	"github.com/gyaneshwarpardhi/automation/internal/rule"
	"github.com/gyaneshwarpardhi/automation/internal/store"
)

type testEnv struct {
	handler http.Handler
	store   *store.Store
	log     *execlog.Log
	bus     *event.Bus
	host    *host.Memory
	eng     *engine.Engine
}

func newTestEnv(t *testing.T, start bool) *testEnv {
	t.Helper()
	te := &testEnv{
		log:  execlog.New(),
		bus:  event.NewBus(16, nil),
		host: host.NewMemory(host.DefaultState(), nil),
	}
	te.store = store.New(te.bus)
	te.eng = engine.New(engine.Deps{
		Store:       te.store,
		Log:         te.log,
		Bus:         te.bus,
		KV:          kv.NewMemory(),
		Env:         te.host,
		Services:    te.host,
		Loop:        te.host.Loop(),
		Pump:        te.host.Pump(),
		Constraints: te.host,
		Location:    host.NewLoggingLocation(nil),
	}, engine.Config{Interval: time.Hour, SettleDelay: time.Millisecond, PostRunDelay: time.Millisecond})
	if start {
		te.eng.Start(context.Background())
		t.Cleanup(te.eng.Shutdown)
	}
	t.Cleanup(te.bus.Close)
	te.handler = New(Deps{Engine: te.eng, Store: te.store, Log: te.log, Bus: te.bus, Host: te.host})
	return te
}

func (te *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	te.handler.ServeHTTP(rec, req)
	return rec
}

func ruleDoc(t *testing.T, title string, actions ...action.Action) rule.Document {
	t.Helper()
	r := rule.New(title)
	r.Actions = actions
	d, err := rule.ToDocument(r)
	require.NoError(t, err)
	return d
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRuleCRUD(t *testing.T) {
	te := newTestEnv(t, false)

	rec := te.do(t, http.MethodPost, "/v1/rules", ruleDoc(t, "a", &action.Notification{Text: "hi"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	te.do(t, http.MethodPost, "/v1/rules", ruleDoc(t, "b"))

	rec = te.do(t, http.MethodGet, "/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rules []ruleView `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Rules, 2)
	assert.Equal(t, "a", list.Rules[0].Title)
	assert.Equal(t, []string{"Notification: hi"}, list.Rules[0].Actions)
	assert.Equal(t, 1, list.Rules[1].Position)

	rec = te.do(t, http.MethodPost, "/v1/rules/swap", swapRequest{From: 0, To: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	first, _ := te.store.At(0)
	assert.Equal(t, "b", first.Title)

	rec = te.do(t, http.MethodPut, "/v1/rules/0", ruleDoc(t, "c"))
	require.Equal(t, http.StatusOK, rec.Code)
	first, _ = te.store.At(0)
	assert.Equal(t, "c", first.Title)

	rec = te.do(t, http.MethodPut, "/v1/rules/9", ruleDoc(t, "x"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = te.do(t, http.MethodDelete, "/v1/rules?title=a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, te.store.Size())

	rec = te.do(t, http.MethodDelete, "/v1/rules/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, te.store.Size())
}

func TestRuleValidation(t *testing.T) {
	te := newTestEnv(t, false)

	assert.Equal(t, http.StatusBadRequest, te.do(t, http.MethodPost, "/v1/rules", "{").Code)
	assert.Equal(t, http.StatusBadRequest, te.do(t, http.MethodPost, "/v1/rules", rule.Document{}).Code)
	assert.Equal(t, http.StatusBadRequest,
		te.do(t, http.MethodPost, "/v1/rules", rule.Document{Title: "x", Trigger: `{"type":"TriggerNope","data":{}}`}).Code)
	assert.Equal(t, http.StatusBadRequest, te.do(t, http.MethodDelete, "/v1/rules/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, te.do(t, http.MethodDelete, "/v1/rules", nil).Code)
}

func TestAddIfNotExistsTwice(t *testing.T) {
	te := newTestEnv(t, false)
	doc := ruleDoc(t, "dup")

	rec := te.do(t, http.MethodPost, "/v1/rules/if-not-exists", doc)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = te.do(t, http.MethodPost, "/v1/rules/if-not-exists", doc)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["added"])
	assert.Equal(t, 1, te.store.Size())
}

func TestRemoveAtOutOfRangeIsNoop(t *testing.T) {
	te := newTestEnv(t, false)
	te.store.Add(rule.New("only"))

	notified := make(chan struct{}, 1)
	unsub := te.bus.Subscribe(event.KindRuleSetChanged, func(event.Event) { notified <- struct{}{} })
	defer unsub()

	rec := te.do(t, http.MethodDelete, "/v1/rules/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, te.store.Size())
	select {
	case <-notified:
		t.Fatal("out of range removal must not notify")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUserRuleRun(t *testing.T) {
	te := newTestEnv(t, true)
	doc := ruleDoc(t, "button", &action.Notification{Text: "pressed"})
	doc.UserAction = true
	te.do(t, http.MethodPost, "/v1/rules", ruleDoc(t, "scheduled"))
	te.do(t, http.MethodPost, "/v1/rules", doc)

	rec := te.do(t, http.MethodGet, "/v1/rules/user", nil)
	var list struct {
		Rules []ruleView `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Rules, 1)
	assert.Equal(t, 1, list.Rules[0].Index)

	rec = te.do(t, http.MethodPost, "/v1/rules/1/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeBody(t, rec)["ran"])
	require.Eventually(t, func() bool { return len(te.host.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusConflict, te.do(t, http.MethodPost, "/v1/rules/0/run", nil).Code)
	assert.Equal(t, http.StatusNotFound, te.do(t, http.MethodPost, "/v1/rules/7/run", nil).Code)
}

func TestPassWithHostState(t *testing.T) {
	te := newTestEnv(t, true)
	seed, err := rule.Seed()
	require.NoError(t, err)
	te.store.Add(seed)

	rec := te.do(t, http.MethodPost, "/v1/host/state", `{"glucose":{"value":68.4,"delta":-3.6},"loop_suspended":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = te.do(t, http.MethodPost, "/v1/passes?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = te.do(t, http.MethodGet, "/v1/log?limit=5", nil)
	body := decodeBody(t, rec)
	assert.Equal(t, []interface{}{"Loop disabled"}, body["entries"])
	assert.Nil(t, te.host.State().TempTarget)

	te.do(t, http.MethodPost, "/v1/host/state", `{"loop_suspended":false}`)
	te.do(t, http.MethodPost, "/v1/passes?wait=true", nil)
	require.Eventually(t, func() bool { return te.host.State().TempTarget != nil }, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 144, te.host.State().TempTarget.Low, 0.001)

	assert.Equal(t, http.StatusBadRequest, te.do(t, http.MethodPost, "/v1/host/state", "[").Code)
	assert.Equal(t, http.StatusBadRequest, te.do(t, http.MethodGet, "/v1/log?limit=-1", nil).Code)
}

func TestInjectEvents(t *testing.T) {
	te := newTestEnv(t, true)
	r := rule.New("car")
	r.Trigger = &condition.BTDevice{Name: "Car", Comparator: condition.OnConnect}
	r.Actions = []action.Action{&action.Notification{Text: "car"}}
	te.store.Add(r)

	rec := te.do(t, http.MethodPost, "/v1/events/bt", event.BTChange{State: event.BTConnected, DeviceName: "Car"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool { return len(te.host.Sent()) == 1 }, time.Second, 5*time.Millisecond)

	rec = te.do(t, http.MethodPost, "/v1/events/location", event.LocationChange{Latitude: 50, Longitude: 14})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, te.host.State().Location)

	rec = te.do(t, http.MethodPost, "/v1/events/network", event.NetworkChange{WifiConnected: true, SSID: "home"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "home", te.host.State().WifiSSID)

	assert.Equal(t, http.StatusBadRequest, te.do(t, http.MethodPost, "/v1/events/bt", event.BTChange{State: "paired", DeviceName: "Car"}).Code)
	assert.Equal(t, http.StatusNotFound, te.do(t, http.MethodPost, "/v1/events/earthquake", "{}").Code)
}

func TestCatalogAndProbes(t *testing.T) {
	te := newTestEnv(t, false)

	rec := te.do(t, http.MethodGet, "/v1/catalog", nil)
	body := decodeBody(t, rec)
	assert.Len(t, body["triggers"], 17)
	assert.Len(t, body["actions"], 10)

	assert.Equal(t, http.StatusOK, te.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, te.do(t, http.MethodGet, "/readyz", nil).Code)

	te.eng.Start(context.Background())
	defer te.eng.Shutdown()
	assert.Equal(t, http.StatusOK, te.do(t, http.MethodGet, "/readyz", nil).Code)

	rec = te.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "automation_rules")
}

func TestCatalogTemplatesUseHostUnits(t *testing.T) {
	te := newTestEnv(t, false)
	te.host.Update(func(s *host.State) { s.Units = condition.UnitsMmol })

	rec := te.do(t, http.MethodGet, "/v1/catalog?templates=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Units    condition.Units            `json:"units"`
		Triggers map[string]json.RawMessage `json:"triggers"`
		Actions  map[string]json.RawMessage `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, condition.UnitsMmol, body.Units)
	assert.Len(t, body.Triggers, 17)
	assert.Len(t, body.Actions, 10)

	bg, err := condition.Decode(string(body.Triggers["TriggerBg"]))
	require.NoError(t, err)
	assert.Equal(t, condition.UnitsMmol, bg.(*condition.Bg).Units)
	tt, err := action.Decode(string(body.Actions["ActionStartTempTarget"]))
	require.NoError(t, err)
	assert.Equal(t, condition.UnitsMmol, tt.(*action.StartTempTarget).Units)
}

func TestLogStream(t *testing.T) {
	te := newTestEnv(t, false)
	te.log.Add("first")

	srv := httptest.NewServer(te.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame logFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, []string{"first"}, frame.Lines)

	// the subscription is registered before the first frame is written
	te.log.Add("second")
	te.bus.Publish(event.New(event.KindUpdateGUI, nil))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, []string{"second"}, frame.Lines)
	assert.Equal(t, 2, frame.Next)
}
