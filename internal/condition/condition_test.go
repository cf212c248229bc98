package condition

import (
	"errors"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/automation/internal/event"
)

// fakeEnv implements Env for tests. Zero values mean "not available" where
// the method reports availability.
type fakeEnv struct {
	glucose   *GlucoseStatus
	iob       float64
	cob       *float64
	pct       *int
	tt        *TempTarget
	ssid      string
	loc, prev *Location
	autosens  *float64
	lastBolus time.Time
	lastPump  time.Time
}

func (f *fakeEnv) GlucoseStatus() (GlucoseStatus, bool) {
	if f.glucose == nil {
		return GlucoseStatus{}, false
	}
	return *f.glucose, true
}
func (f *fakeEnv) IOB() float64 { return f.iob }
func (f *fakeEnv) COB() (float64, bool) {
	if f.cob == nil {
		return 0, false
	}
	return *f.cob, true
}
func (f *fakeEnv) ProfilePercent() (int, bool) {
	if f.pct == nil {
		return 0, false
	}
	return *f.pct, true
}
func (f *fakeEnv) TempTarget() (TempTarget, bool) {
	if f.tt == nil {
		return TempTarget{}, false
	}
	return *f.tt, true
}
func (f *fakeEnv) WifiSSID() (string, bool) { return f.ssid, f.ssid != "" }
func (f *fakeEnv) Location() (Location, bool) {
	if f.loc == nil {
		return Location{}, false
	}
	return *f.loc, true
}
func (f *fakeEnv) PreviousLocation() (Location, bool) {
	if f.prev == nil {
		return Location{}, false
	}
	return *f.prev, true
}
func (f *fakeEnv) AutosensRatio() (float64, bool) {
	if f.autosens == nil {
		return 0, false
	}
	return *f.autosens, true
}
func (f *fakeEnv) LastBolusTime() (time.Time, bool)      { return f.lastBolus, !f.lastBolus.IsZero() }
func (f *fakeEnv) PumpLastConnection() (time.Time, bool) { return f.lastPump, !f.lastPump.IsZero() }

func ptr[T any](v T) *T { return &v }

var now = time.Date(2026, 3, 4, 10, 30, 0, 0, time.Local) // a Wednesday

func evalCtx(env *fakeEnv) *EvalContext {
	return &EvalContext{Env: env, Now: now}
}

type leafCase struct {
	name string
	trig Trigger
	ctx  *EvalContext
	want bool
}

func TestLeaves(t *testing.T) {
	low := &fakeEnv{glucose: &GlucoseStatus{Glucose: 68.4, Delta: -3.6, ShortAvgDelta: -2, LongAvgDelta: 1}}
	home := Location{Latitude: 50.0755, Longitude: 14.4378}
	away := Location{Latitude: 50.2, Longitude: 14.4378}

	cases := []leafCase{
		// Glucose
		{"bg mmol lesser", &Bg{Value: 4, Comparator: IsLesser, Units: UnitsMmol}, evalCtx(low), true},
		{"bg mgdl greater", &Bg{Value: 70, Comparator: IsGreater, Units: UnitsMgdl}, evalCtx(low), false},
		{"bg missing", &Bg{Value: 4, Comparator: IsLesser, Units: UnitsMmol}, evalCtx(&fakeEnv{}), false},
		{"bg not available", &Bg{Comparator: IsNotAvailable}, evalCtx(&fakeEnv{}), true},
		{"bg not available but present", &Bg{Comparator: IsNotAvailable}, evalCtx(low), false},
		{"delta lesser", &Delta{Value: -0.1, Units: UnitsMmol, DeltaType: DeltaPlain, Comparator: IsLesser}, evalCtx(low), true},
		{"short avg delta", &Delta{Value: -3, Units: UnitsMgdl, DeltaType: DeltaShortAverage, Comparator: IsLesser}, evalCtx(low), false},
		{"long avg delta", &Delta{Value: 0, Units: UnitsMgdl, DeltaType: DeltaLongAverage, Comparator: IsGreater}, evalCtx(low), true},
		// Insulin / carbs / profile
		{"iob", &Iob{Insulin: 2, Comparator: IsEqualOrGreater}, evalCtx(&fakeEnv{iob: 2}), true},
		{"cob missing", &Cob{Carbs: 10, Comparator: IsGreater}, evalCtx(&fakeEnv{}), false},
		{"cob", &Cob{Carbs: 10, Comparator: IsGreater}, evalCtx(&fakeEnv{cob: ptr(25.0)}), true},
		{"profile pct", &ProfilePercent{Percentage: 100, Comparator: IsEqual}, evalCtx(&fakeEnv{pct: ptr(100)}), true},
		{"autosens", &AutosensValue{Value: 120, Comparator: IsGreater}, evalCtx(&fakeEnv{autosens: ptr(1.3)}), true},
		// Temp targets
		{"tt exists", &TempTargetSet{Comparator: Exists}, evalCtx(&fakeEnv{tt: &TempTarget{Low: 144, High: 144}}), true},
		{"tt not exists", &TempTargetSet{Comparator: NotExists}, evalCtx(&fakeEnv{}), true},
		{"tt value", &TempTargetValue{Value: 8, Units: UnitsMmol, Comparator: IsEqual}, evalCtx(&fakeEnv{tt: &TempTarget{Low: 144, High: 144}}), true},
		// Connectivity
		{"wifi equal", &WifiSsid{SSID: "home", Comparator: IsEqual}, evalCtx(&fakeEnv{ssid: "home"}), true},
		{"wifi other", &WifiSsid{SSID: "home", Comparator: IsEqual}, evalCtx(&fakeEnv{ssid: "office"}), false},
		{"wifi disconnected", &WifiSsid{Comparator: IsNotAvailable}, evalCtx(&fakeEnv{}), true},
		{"inside", &GeoLocation{Latitude: home.Latitude, Longitude: home.Longitude, Distance: 200, Mode: Inside}, evalCtx(&fakeEnv{loc: &home}), true},
		{"outside", &GeoLocation{Latitude: home.Latitude, Longitude: home.Longitude, Distance: 200, Mode: Outside}, evalCtx(&fakeEnv{loc: &away}), true},
		{"going in", &GeoLocation{Latitude: home.Latitude, Longitude: home.Longitude, Distance: 200, Mode: GoingIn}, evalCtx(&fakeEnv{loc: &home, prev: &away}), true},
		{"going out no prev", &GeoLocation{Latitude: home.Latitude, Longitude: home.Longitude, Distance: 200, Mode: GoingOut}, evalCtx(&fakeEnv{loc: &away}), false},
		// Ages
		{"bolus ago", &BolusAgo{MinutesAgo: 60, Comparator: IsGreater}, evalCtx(&fakeEnv{lastBolus: now.Add(-90 * time.Minute)}), true},
		{"no bolus", &BolusAgo{Comparator: IsNotAvailable}, evalCtx(&fakeEnv{}), true},
		{"pump connection", &PumpLastConnection{MinutesAgo: 30, Comparator: IsGreater}, evalCtx(&fakeEnv{lastPump: now.Add(-10 * time.Minute)}), false},
		// Time
		{"time range", &TimeRange{Start: 10 * 60, End: 11 * 60}, evalCtx(&fakeEnv{}), true},
		{"time range outside", &TimeRange{Start: 11 * 60, End: 12 * 60}, evalCtx(&fakeEnv{}), false},
		{"time range wraps", &TimeRange{Start: 22 * 60, End: 11 * 60}, evalCtx(&fakeEnv{}), true},
		{"time window", &Time{RunAt: now.Add(-2 * time.Minute).UnixMilli()}, evalCtx(&fakeEnv{}), true},
		{"time too late", &Time{RunAt: now.Add(-10 * time.Minute).UnixMilli()}, evalCtx(&fakeEnv{}), false},
		{"time already run", &Time{RunAt: now.Add(-2 * time.Minute).UnixMilli()},
			&EvalContext{Env: &fakeEnv{}, Now: now, LastRun: now.Add(-time.Minute)}, false},
		{"recurring wednesday", &RecurringTime{Wednesday: true, Minute: 10*60 + 28}, evalCtx(&fakeEnv{}), true},
		{"recurring other day", &RecurringTime{Monday: true, Minute: 10*60 + 28}, evalCtx(&fakeEnv{}), false},
		// Bluetooth
		{"bt connect seen", &BTDevice{Name: "car", Comparator: OnConnect},
			&EvalContext{Env: &fakeEnv{}, Now: now, BTEvents: []event.BTChange{{State: event.BTConnected, DeviceName: "car"}}}, true},
		{"bt wrong edge", &BTDevice{Name: "car", Comparator: OnDisconnect},
			&EvalContext{Env: &fakeEnv{}, Now: now, BTEvents: []event.BTChange{{State: event.BTConnected, DeviceName: "car"}}}, false},
		{"bt nothing buffered", &BTDevice{Name: "car", Comparator: OnConnect}, evalCtx(&fakeEnv{}), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.trig.ShouldRun(tc.ctx); got != tc.want {
				t.Errorf("%s.ShouldRun() = %v, want %v", tc.trig.Kind(), got, tc.want)
			}
		})
	}
}

type constTrigger struct {
	val   bool
	calls *int
}

func (c constTrigger) Kind() string { return "const" }
func (c constTrigger) ShouldRun(*EvalContext) bool {
	*c.calls++
	return c.val
}
func (c constTrigger) FriendlyDescription() string { return "const" }

func TestConnector_Semantics(t *testing.T) {
	cases := []struct {
		name string
		ct   ConnectorType
		vals []bool
		want bool
	}{
		{"and empty", And, nil, true},
		{"and all", And, []bool{true, true}, true},
		{"and one false", And, []bool{false, true}, false},
		{"or empty", Or, nil, false},
		{"or one", Or, []bool{true, false}, true},
		{"xor one", Xor, []bool{true, false, false}, true},
		{"xor two", Xor, []bool{true, true, false}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			c := NewConnector(tc.ct)
			for _, v := range tc.vals {
				c.Children = append(c.Children, constTrigger{val: v, calls: &calls})
			}
			if got := c.ShouldRun(evalCtx(&fakeEnv{})); got != tc.want {
				t.Errorf("ShouldRun() = %v, want %v", got, tc.want)
			}
			if calls != len(tc.vals) {
				t.Errorf("evaluated %d children, want all %d", calls, len(tc.vals))
			}
		})
	}
}

func TestEncodeDecode_Nested(t *testing.T) {
	tree := NewConnector(And,
		&Bg{Value: 4, Comparator: IsLesser, Units: UnitsMmol},
		NewConnector(Or,
			&WifiSsid{SSID: "home", Comparator: IsEqual},
			&BTDevice{Name: "car", Comparator: OnDisconnect},
		),
		&RecurringTime{Monday: true, Friday: true, Minute: 420},
	)
	s, err := Encode(tree)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	again, err := Encode(back)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if s != again {
		t.Errorf("round trip mismatch:\n%s\n%s", s, again)
	}
	c, ok := back.(*Connector)
	if !ok || c.Size() != 4 {
		t.Fatalf("decoded tree = %#v", back)
	}
	if back.FriendlyDescription() != tree.FriendlyDescription() {
		t.Errorf("description %q != %q", back.FriendlyDescription(), tree.FriendlyDescription())
	}
}

func TestDecode_PackagePrefixedType(t *testing.T) {
	s := `{"type":"info.nightscout.automation.triggers.TriggerBg","data":{"bg":4,"comparator":"IS_LESSER","units":"mmol"}}`
	got, err := Decode(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	bg, ok := got.(*Bg)
	if !ok || bg.Value != 4 || bg.Units != UnitsMmol || bg.Comparator != IsLesser {
		t.Errorf("decoded %#v", got)
	}
}

func TestDecode_Errors(t *testing.T) {
	if _, err := Decode(`{"type":"TriggerTeleport","data":{}}`); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind: got %v", err)
	}
	if _, err := Decode(`{"type":`); err == nil {
		t.Error("expected error for truncated document")
	}
	bad := `{"type":"TriggerConnector","data":{"connectorType":"AND","triggerList":["{\"type\":\"Nope\"}"]}}`
	if _, err := Decode(bad); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("nested unknown kind: got %v", err)
	}
}

func TestKinds_Catalog(t *testing.T) {
	ks := Kinds()
	if len(ks) != 17 || ks[0] != "TriggerConnector" {
		t.Fatalf("Kinds() = %v", ks)
	}
	for _, k := range ks {
		tr, err := Template(k)
		if err != nil {
			t.Fatalf("Template(%s): %v", k, err)
		}
		if tr.Kind() != k {
			t.Errorf("Template(%s).Kind() = %s", k, tr.Kind())
		}
	}
}
