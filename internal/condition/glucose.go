package condition

import "fmt"

// Bg compares the latest glucose reading.
type Bg struct {
	Value      float64    `json:"bg"`
	Comparator Comparator `json:"comparator"`
	Units      Units      `json:"units"`
}

func (t *Bg) Kind() string { return "TriggerBg" }

func (t *Bg) SetUnits(u Units) { t.Units = u }

func (t *Bg) ShouldRun(ctx *EvalContext) bool {
	gs, ok := ctx.Env.GlucoseStatus()
	return t.Comparator.Available(gs.Glucose, ok, ToMgdl(t.Value, t.Units))
}

func (t *Bg) FriendlyDescription() string {
	if t.Comparator == IsNotAvailable {
		return "BG not available"
	}
	return fmt.Sprintf("BG %s %g %s", t.Comparator.symbol(), t.Value, t.Units)
}

// DeltaType selects which glucose delta a Delta trigger reads.
type DeltaType string

const (
	DeltaPlain        DeltaType = "DELTA"
	DeltaShortAverage DeltaType = "SHORT_AVERAGE"
	DeltaLongAverage  DeltaType = "LONG_AVERAGE"
)

// Delta compares one of the glucose deltas.
type Delta struct {
	Value      float64    `json:"value"`
	Units      Units      `json:"units"`
	DeltaType  DeltaType  `json:"deltaType"`
	Comparator Comparator `json:"comparator"`
}

func (t *Delta) Kind() string { return "TriggerDelta" }

func (t *Delta) SetUnits(u Units) { t.Units = u }

func (t *Delta) ShouldRun(ctx *EvalContext) bool {
	gs, ok := ctx.Env.GlucoseStatus()
	var d float64
	switch t.DeltaType {
	case DeltaShortAverage:
		d = gs.ShortAvgDelta
	case DeltaLongAverage:
		d = gs.LongAvgDelta
	default:
		d = gs.Delta
	}
	return t.Comparator.Available(d, ok, ToMgdl(t.Value, t.Units))
}

func (t *Delta) FriendlyDescription() string {
	return fmt.Sprintf("%s %s %g %s", t.DeltaType, t.Comparator.symbol(), t.Value, t.Units)
}

// Iob compares total insulin on board.
type Iob struct {
	Insulin    float64    `json:"insulin"`
	Comparator Comparator `json:"comparator"`
}

func (t *Iob) Kind() string { return "TriggerIob" }

func (t *Iob) ShouldRun(ctx *EvalContext) bool {
	return t.Comparator.Available(ctx.Env.IOB(), true, t.Insulin)
}

func (t *Iob) FriendlyDescription() string {
	return fmt.Sprintf("IOB %s %gU", t.Comparator.symbol(), t.Insulin)
}

// Cob compares carbs on board.
type Cob struct {
	Carbs      float64    `json:"carbs"`
	Comparator Comparator `json:"comparator"`
}

func (t *Cob) Kind() string { return "TriggerCOB" }

func (t *Cob) ShouldRun(ctx *EvalContext) bool {
	cob, ok := ctx.Env.COB()
	return t.Comparator.Available(cob, ok, t.Carbs)
}

func (t *Cob) FriendlyDescription() string {
	return fmt.Sprintf("COB %s %gg", t.Comparator.symbol(), t.Carbs)
}

// ProfilePercent compares the active profile percentage.
type ProfilePercent struct {
	Percentage float64    `json:"percentage"`
	Comparator Comparator `json:"comparator"`
}

func (t *ProfilePercent) Kind() string { return "TriggerProfilePercent" }

func (t *ProfilePercent) ShouldRun(ctx *EvalContext) bool {
	pct, ok := ctx.Env.ProfilePercent()
	return t.Comparator.Available(float64(pct), ok, t.Percentage)
}

func (t *ProfilePercent) FriendlyDescription() string {
	return fmt.Sprintf("Profile %s %g%%", t.Comparator.symbol(), t.Percentage)
}

// TempTargetSet tests whether a temp target is active.
type TempTargetSet struct {
	Comparator ExistsComparator `json:"comparator"`
}

func (t *TempTargetSet) Kind() string { return "TriggerTempTarget" }

func (t *TempTargetSet) ShouldRun(ctx *EvalContext) bool {
	_, ok := ctx.Env.TempTarget()
	return t.Comparator.Check(ok)
}

func (t *TempTargetSet) FriendlyDescription() string {
	if t.Comparator == NotExists {
		return "No temp target"
	}
	return "Temp target exists"
}

// TempTargetValue compares the active temp target's value.
type TempTargetValue struct {
	Value      float64    `json:"tt"`
	Units      Units      `json:"units"`
	Comparator Comparator `json:"comparator"`
}

func (t *TempTargetValue) Kind() string { return "TriggerTempTargetValue" }

func (t *TempTargetValue) SetUnits(u Units) { t.Units = u }

func (t *TempTargetValue) ShouldRun(ctx *EvalContext) bool {
	tt, ok := ctx.Env.TempTarget()
	return t.Comparator.Available(tt.Target(), ok, ToMgdl(t.Value, t.Units))
}

func (t *TempTargetValue) FriendlyDescription() string {
	return fmt.Sprintf("Temp target %s %g %s", t.Comparator.symbol(), t.Value, t.Units)
}

// AutosensValue compares the autosens ratio, expressed in percent.
type AutosensValue struct {
	Value      float64    `json:"value"`
	Comparator Comparator `json:"comparator"`
}

func (t *AutosensValue) Kind() string { return "TriggerAutosensValue" }

func (t *AutosensValue) ShouldRun(ctx *EvalContext) bool {
	ratio, ok := ctx.Env.AutosensRatio()
	return t.Comparator.Available(ratio*100, ok, t.Value)
}

func (t *AutosensValue) FriendlyDescription() string {
	return fmt.Sprintf("Autosens %s %g%%", t.Comparator.symbol(), t.Value)
}
