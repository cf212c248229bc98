package condition

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConnectorType is the boolean combinator of a Connector.
type ConnectorType string

const (
	And ConnectorType = "AND"
	Or  ConnectorType = "OR"
	Xor ConnectorType = "XOR"
)

// Connector combines an ordered list of child triggers.
type Connector struct {
	Type     ConnectorType
	Children []Trigger
}

// NewConnector returns a connector of type ct over children.
func NewConnector(ct ConnectorType, children ...Trigger) *Connector {
	return &Connector{Type: ct, Children: children}
}

func (c *Connector) Kind() string { return "TriggerConnector" }

// ShouldRun evaluates every child in order, then combines. An empty AND
// holds, an empty OR or XOR does not.
func (c *Connector) ShouldRun(ctx *EvalContext) bool {
	results := make([]bool, len(c.Children))
	for i, child := range c.Children {
		results[i] = child.ShouldRun(ctx)
	}
	switch c.Type {
	case Or:
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	case Xor:
		n := 0
		for _, r := range results {
			if r {
				n++
			}
		}
		return n%2 == 1
	default:
		for _, r := range results {
			if !r {
				return false
			}
		}
		return true
	}
}

func (c *Connector) FriendlyDescription() string {
	if len(c.Children) == 0 {
		return "always"
	}
	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		d := child.FriendlyDescription()
		if _, nested := child.(*Connector); nested {
			d = "(" + d + ")"
		}
		parts[i] = d
	}
	return strings.Join(parts, " "+string(c.Type)+" ")
}

// Size counts leaf nodes under c.
func (c *Connector) Size() int {
	n := 0
	for _, child := range c.Children {
		if sub, ok := child.(*Connector); ok {
			n += sub.Size()
		} else {
			n++
		}
	}
	return n
}

type connectorData struct {
	ConnectorType ConnectorType `json:"connectorType"`
	TriggerList   []string      `json:"triggerList"`
}

// MarshalJSON stores each child as an independently decodable string.
func (c *Connector) MarshalJSON() ([]byte, error) {
	d := connectorData{ConnectorType: c.Type, TriggerList: make([]string, 0, len(c.Children))}
	for _, child := range c.Children {
		s, err := Encode(child)
		if err != nil {
			return nil, err
		}
		d.TriggerList = append(d.TriggerList, s)
	}
	return json.Marshal(d)
}

func (c *Connector) UnmarshalJSON(b []byte) error {
	var d connectorData
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	switch d.ConnectorType {
	case And, Or, Xor:
		c.Type = d.ConnectorType
	case "":
		c.Type = And
	default:
		return fmt.Errorf("unknown connector type %q", string(d.ConnectorType))
	}
	c.Children = make([]Trigger, 0, len(d.TriggerList))
	for i, s := range d.TriggerList {
		child, err := Decode(s)
		if err != nil {
			return fmt.Errorf("triggerList[%d]: %w", i, err)
		}
		c.Children = append(c.Children, child)
	}
	return nil
}
