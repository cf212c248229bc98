package condition

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned when a serialized node names an unregistered kind.
var ErrUnknownKind = errors.New("unknown trigger kind")

// Trigger is one node of a condition tree: either a leaf predicate or a
// Connector combining child nodes. Implementations hold only their
// configuration; everything they observe comes through the EvalContext.
type Trigger interface {
	// Kind returns the type tag this node is serialized under.
	Kind() string
	// ShouldRun evaluates the node against the current state.
	ShouldRun(ctx *EvalContext) bool
	// FriendlyDescription renders the node for logs and UIs.
	FriendlyDescription() string
}

// node is the self-describing envelope every trigger is stored in.
type node struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type factory func() Trigger

var (
	kinds     []string
	factories = map[string]factory{}
)

func register(f factory) {
	k := f().Kind()
	if _, dup := factories[k]; dup {
		panic(fmt.Sprintf("condition: duplicate kind %q", k))
	}
	factories[k] = f
	kinds = append(kinds, k)
}

func init() {
	register(func() Trigger { return NewConnector(And) })
	register(func() Trigger { return &Time{} })
	register(func() Trigger { return &RecurringTime{} })
	register(func() Trigger { return &TimeRange{} })
	register(func() Trigger { return &Bg{Comparator: IsEqual, Units: UnitsMgdl} })
	register(func() Trigger { return &Delta{Comparator: IsEqual, Units: UnitsMgdl, DeltaType: DeltaPlain} })
	register(func() Trigger { return &Iob{Comparator: IsEqual} })
	register(func() Trigger { return &Cob{Comparator: IsEqual} })
	register(func() Trigger { return &ProfilePercent{Comparator: IsEqual, Percentage: 100} })
	register(func() Trigger { return &TempTargetSet{Comparator: Exists} })
	register(func() Trigger { return &TempTargetValue{Comparator: IsEqual, Units: UnitsMgdl} })
	register(func() Trigger { return &WifiSsid{Comparator: IsEqual} })
	register(func() Trigger { return &GeoLocation{Mode: Inside, Distance: 200} })
	register(func() Trigger { return &AutosensValue{Comparator: IsEqual, Value: 100} })
	register(func() Trigger { return &BolusAgo{Comparator: IsEqualOrGreater} })
	register(func() Trigger { return &PumpLastConnection{Comparator: IsEqualOrGreater} })
	register(func() Trigger { return &BTDevice{Comparator: OnConnect} })
}

// Kinds lists every registered trigger kind in catalog order.
func Kinds() []string {
	out := make([]string, len(kinds))
	copy(out, kinds)
	return out
}

// Template returns a default-configured instance of kind, for rule builders.
func Template(kind string) (Trigger, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f(), nil
}

// TemplateIn is Template with glucose thresholds expressed in u.
func TemplateIn(kind string, u Units) (Trigger, error) {
	t, err := Template(kind)
	if err != nil {
		return nil, err
	}
	if s, ok := t.(interface{ SetUnits(Units) }); ok && u != "" {
		s.SetUnits(u)
	}
	return t, nil
}

// Encode renders t as its stringified {"type","data"} document.
func Encode(t Trigger) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", t.Kind(), err)
	}
	out, err := json.Marshal(node{Type: t.Kind(), Data: data})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", t.Kind(), err)
	}
	return string(out), nil
}

// Decode parses a stringified node. Type tags may carry a dotted package
// prefix; only the last segment selects the kind.
func Decode(s string) (Trigger, error) {
	var n node
	if err := json.Unmarshal([]byte(s), &n); err != nil {
		return nil, fmt.Errorf("decode trigger: %w", err)
	}
	kind := n.Type
	if i := strings.LastIndexByte(kind, '.'); i >= 0 {
		kind = kind[i+1:]
	}
	t, err := Template(kind)
	if err != nil {
		return nil, err
	}
	if len(n.Data) > 0 && string(n.Data) != "null" {
		if err := json.Unmarshal(n.Data, t); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", kind, err)
		}
	}
	return t, nil
}
