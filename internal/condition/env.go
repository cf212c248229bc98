package condition

import (
	"time"

	"github.com/gyaneshwarpardhi/automation/internal/event"
)

// MgdlPerMmol converts between the two glucose units.
const MgdlPerMmol = 18.0

// Units is the glucose unit a leaf threshold is expressed in.
type Units string

const (
	UnitsMgdl Units = "mg/dl"
	UnitsMmol Units = "mmol"
)

// ToMgdl converts v from u into mg/dL.
func ToMgdl(v float64, u Units) float64 {
	if u == UnitsMmol {
		return v * MgdlPerMmol
	}
	return v
}

// GlucoseStatus is the latest reading and its deltas, all in mg/dL.
type GlucoseStatus struct {
	Glucose       float64
	Delta         float64
	ShortAvgDelta float64
	LongAvgDelta  float64
	Timestamp     time.Time
}

// TempTarget is an active temporary glucose target.
type TempTarget struct {
	Low      float64 // mg/dL
	High     float64 // mg/dL
	Start    time.Time
	Duration time.Duration
	Reason   string
}

// Target is the midpoint the target aims for.
func (t TempTarget) Target() float64 { return (t.Low + t.High) / 2 }

// Location is a geographic fix.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Env is the read model leaf triggers query. Every method reports the
// current value; the boolean is false when the value is not known.
type Env interface {
	GlucoseStatus() (GlucoseStatus, bool)
	IOB() float64
	COB() (float64, bool)
	ProfilePercent() (int, bool)
	TempTarget() (TempTarget, bool)
	WifiSSID() (string, bool)
	Location() (Location, bool)
	PreviousLocation() (Location, bool)
	AutosensRatio() (float64, bool)
	LastBolusTime() (time.Time, bool)
	PumpLastConnection() (time.Time, bool)
}

// EvalContext carries per-evaluation inputs through a tree.
type EvalContext struct {
	Env      Env
	Now      time.Time
	LastRun  time.Time        // owning rule's last run, zero if never
	BTEvents []event.BTChange // Bluetooth edges buffered since the previous pass
}
