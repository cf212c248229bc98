package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened. Subscribers register per kind.
type Kind string

const (
	KindPreferenceChanged Kind = "preference_changed"
	KindRuleSetChanged    Kind = "rule_set_changed"
	KindLocationChanged   Kind = "location_changed"
	KindChargingChanged   Kind = "charging_changed"
	KindNetworkChanged    Kind = "network_changed"
	KindBTChanged         Kind = "bt_changed"
	KindUpdateGUI         Kind = "update_gui"
)

// Event is the canonical envelope carried by the Bus.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	Source     string    `json:"source,omitempty"`
	Payload    any       `json:"payload,omitempty"` // one of the payload types below, or nil
}

// New stamps a fresh event of the given kind.
func New(kind Kind, payload any) Event {
	return Event{
		ID:         uuid.New().String(),
		Kind:       kind,
		OccurredAt: time.Now(),
		Payload:    payload,
	}
}

// PreferenceChange names the preference key that changed.
type PreferenceChange struct {
	Key string `json:"key"`
}

// BTState is the edge reported by a Bluetooth change.
type BTState string

const (
	BTConnected    BTState = "connected"
	BTDisconnected BTState = "disconnected"
)

// BTChange is the payload of KindBTChanged.
type BTChange struct {
	State         BTState `json:"state"`
	DeviceName    string  `json:"device_name"`
	DeviceAddress string  `json:"device_address,omitempty"`
}

// LocationChange is the payload of KindLocationChanged.
type LocationChange struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Provider  string  `json:"provider,omitempty"`
}

// ChargingChange is the payload of KindChargingChanged.
type ChargingChange struct {
	Charging     bool `json:"charging"`
	BatteryLevel int  `json:"battery_level"`
}

// NetworkChange is the payload of KindNetworkChanged.
type NetworkChange struct {
	WifiConnected   bool   `json:"wifi_connected"`
	SSID            string `json:"ssid,omitempty"`
	MobileConnected bool   `json:"mobile_connected"`
}
