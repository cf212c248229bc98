package condition

import (
	"fmt"
	"math"
	"strings"

	"github.com/gyaneshwarpardhi/automation/internal/event"
)

// WifiSsid matches the connected wifi network. IS_NOT_AVAILABLE matches
// when no wifi is connected.
type WifiSsid struct {
	SSID       string     `json:"ssid"`
	Comparator Comparator `json:"comparator"`
}

func (t *WifiSsid) Kind() string { return "TriggerWifiSsid" }

func (t *WifiSsid) ShouldRun(ctx *EvalContext) bool {
	ssid, ok := ctx.Env.WifiSSID()
	if !ok {
		return t.Comparator == IsNotAvailable
	}
	if t.Comparator == IsNotAvailable {
		return false
	}
	return t.Comparator.CheckString(ssid, t.SSID)
}

func (t *WifiSsid) FriendlyDescription() string {
	if t.Comparator == IsNotAvailable {
		return "WiFi not connected"
	}
	return fmt.Sprintf("WiFi SSID %s %s", t.Comparator.symbol(), t.SSID)
}

// GeoLocation relates the current position to a circle.
type GeoLocation struct {
	Name      string       `json:"name"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Distance  float64      `json:"distance"` // metres
	Mode      LocationMode `json:"mode"`
}

func (t *GeoLocation) Kind() string { return "TriggerLocation" }

func (t *GeoLocation) inside(l Location) bool {
	return distanceMetres(l, Location{Latitude: t.Latitude, Longitude: t.Longitude}) <= t.Distance
}

func (t *GeoLocation) ShouldRun(ctx *EvalContext) bool {
	cur, ok := ctx.Env.Location()
	if !ok {
		return false
	}
	switch t.Mode {
	case Outside:
		return !t.inside(cur)
	case GoingIn, GoingOut:
		prev, ok := ctx.Env.PreviousLocation()
		if !ok {
			return false
		}
		if t.Mode == GoingIn {
			return !t.inside(prev) && t.inside(cur)
		}
		return t.inside(prev) && !t.inside(cur)
	default:
		return t.inside(cur)
	}
}

func (t *GeoLocation) FriendlyDescription() string {
	return fmt.Sprintf("Location %s %s (%gm)", strings.ToLower(strings.ReplaceAll(string(t.Mode), "_", " ")), t.Name, t.Distance)
}

const earthRadiusMetres = 6371000.0

func distanceMetres(a, b Location) float64 {
	rad := math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * rad
	dLon := (b.Longitude - a.Longitude) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Latitude*rad)*math.Cos(b.Latitude*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMetres * math.Asin(math.Sqrt(h))
}

// BolusAgo compares minutes elapsed since the last bolus.
type BolusAgo struct {
	MinutesAgo float64    `json:"minutesAgo"`
	Comparator Comparator `json:"comparator"`
}

func (t *BolusAgo) Kind() string { return "TriggerBolusAgo" }

func (t *BolusAgo) ShouldRun(ctx *EvalContext) bool {
	last, ok := ctx.Env.LastBolusTime()
	return t.Comparator.Available(ctx.Now.Sub(last).Minutes(), ok, t.MinutesAgo)
}

func (t *BolusAgo) FriendlyDescription() string {
	return fmt.Sprintf("Last bolus %s %g min ago", t.Comparator.symbol(), t.MinutesAgo)
}

// PumpLastConnection compares minutes since the pump last connected.
type PumpLastConnection struct {
	MinutesAgo float64    `json:"minutesAgo"`
	Comparator Comparator `json:"comparator"`
}

func (t *PumpLastConnection) Kind() string { return "TriggerPumpLastConnection" }

func (t *PumpLastConnection) ShouldRun(ctx *EvalContext) bool {
	last, ok := ctx.Env.PumpLastConnection()
	return t.Comparator.Available(ctx.Now.Sub(last).Minutes(), ok, t.MinutesAgo)
}

func (t *PumpLastConnection) FriendlyDescription() string {
	return fmt.Sprintf("Pump last connection %s %g min ago", t.Comparator.symbol(), t.MinutesAgo)
}

// BTDevice matches a connect or disconnect edge for a named device among the
// Bluetooth events buffered since the previous pass.
type BTDevice struct {
	Name       string            `json:"name"`
	Comparator ConnectComparator `json:"comparator"`
}

func (t *BTDevice) Kind() string { return "TriggerBTDevice" }

func (t *BTDevice) ShouldRun(ctx *EvalContext) bool {
	want := event.BTConnected
	if t.Comparator == OnDisconnect {
		want = event.BTDisconnected
	}
	for _, ev := range ctx.BTEvents {
		if ev.DeviceName == t.Name && ev.State == want {
			return true
		}
	}
	return false
}

func (t *BTDevice) FriendlyDescription() string {
	if t.Comparator == OnDisconnect {
		return "BT device " + t.Name + " disconnected"
	}
	return "BT device " + t.Name + " connected"
}
