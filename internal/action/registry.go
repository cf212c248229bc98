package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/automation/internal/condition"
)

// ErrUnknownKind is returned when a serialized action names an unregistered kind.
var ErrUnknownKind = errors.New("unknown action kind")

type node struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type factory func() Action

// The registry is filled once in init and only read afterwards.
var (
	kinds     []string
	factories = map[string]factory{}
)

func register(f factory) {
	k := f().Kind()
	if _, exists := factories[k]; exists {
		panic(fmt.Sprintf("action registry: duplicate type %q", k))
	}
	factories[k] = f
	kinds = append(kinds, k)
}

func init() {
	register(func() Action { return &StopProcessing{} })
	register(func() Action { return &StartTempTarget{Units: "mg/dl", DurationMinutes: 30} })
	register(func() Action { return &StopTempTarget{} })
	register(func() Action { return &Notification{} })
	register(func() Action { return &Alarm{} })
	register(func() Action { return &CarePortalEvent{EventType: CarePortalNote} })
	register(func() Action { return &ProfileSwitchPercent{Percentage: 100} })
	register(func() Action { return &ProfileSwitch{} })
	register(func() Action { return &RunAutotune{Days: 5} })
	register(func() Action { return &SendSMS{} })
}

// Kinds returns all registered action type strings in catalog order.
func Kinds() []string {
	out := make([]string, len(kinds))
	copy(out, kinds)
	return out
}

// Template returns a default-configured action of kind.
func Template(kind string) (Action, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f(), nil
}

// TemplateIn is Template with a temp target expressed in u.
func TemplateIn(kind string, u condition.Units) (Action, error) {
	a, err := Template(kind)
	if err != nil {
		return nil, err
	}
	if s, ok := a.(interface{ SetUnits(condition.Units) }); ok && u != "" {
		s.SetUnits(u)
	}
	return a, nil
}

// Encode renders a as its stringified {"type","data"} document.
func Encode(a Action) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", a.Kind(), err)
	}
	out, err := json.Marshal(node{Type: a.Kind(), Data: data})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", a.Kind(), err)
	}
	return string(out), nil
}

// Decode parses a stringified action document.
func Decode(s string) (Action, error) {
	var n node
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	kind := n.Type
	if i := strings.LastIndexByte(kind, '.'); i >= 0 {
		kind = kind[i+1:]
	}
	a, err := Template(kind)
	if err != nil {
		return nil, err
	}
	if len(n.Data) > 0 && string(n.Data) != "null" {
		if err := json.Unmarshal(n.Data, a); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", kind, err)
		}
	}
	return a, nil
}
