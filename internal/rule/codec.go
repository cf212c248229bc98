package rule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
)

// Document is the persisted form of one rule. Trigger, Preconditions and
// each action are themselves stringified {"type","data"} documents.
type Document struct {
	Title         string   `json:"title"`
	Enabled       bool     `json:"enabled"`
	UserAction    bool     `json:"userAction"`
	ReadOnly      bool     `json:"readOnly"`
	AutoRemove    bool     `json:"autoRemove"`
	SystemAction  bool     `json:"systemAction"`
	Trigger       string   `json:"trigger"`
	Preconditions string   `json:"preconditions,omitempty"`
	Actions       []string `json:"actions"`
	LastRun       int64    `json:"lastRun,omitempty"` // unix millis
}

// SeedDocument is loaded when nothing has been stored yet: when glucose is
// below 4 mmol/L and falling, start an 8 mmol/L temp target for an hour.
const SeedDocument = `{"title":"Low","enabled":true,"trigger":"{\"type\":\"TriggerConnector\",\"data\":{\"connectorType\":\"AND\",\"triggerList\":[\"{\\\"type\\\":\\\"TriggerBg\\\",\\\"data\\\":{\\\"bg\\\":4,\\\"comparator\\\":\\\"IS_LESSER\\\",\\\"units\\\":\\\"mmol\\\"}}\",\"{\\\"type\\\":\\\"TriggerDelta\\\",\\\"data\\\":{\\\"value\\\":-0.1,\\\"units\\\":\\\"mmol\\\",\\\"deltaType\\\":\\\"DELTA\\\",\\\"comparator\\\":\\\"IS_LESSER\\\"}}\"]}}","actions":["{\"type\":\"ActionStartTempTarget\",\"data\":{\"value\":8,\"units\":\"mmol\",\"durationInMinutes\":60}}"]}`

// Seed decodes SeedDocument.
func Seed() (Rule, error) {
	var d Document
	if err := json.Unmarshal([]byte(SeedDocument), &d); err != nil {
		return Rule{}, fmt.Errorf("seed document: %w", err)
	}
	return FromDocument(d, 0)
}

// ToDocument converts r to its persisted form.
func ToDocument(r Rule) (Document, error) {
	d := Document{
		Title:        r.Title,
		Enabled:      r.Enabled,
		UserAction:   r.UserAction,
		ReadOnly:     r.ReadOnly,
		AutoRemove:   r.AutoRemove,
		SystemAction: r.SystemAction,
		Actions:      make([]string, 0, len(r.Actions)),
	}
	var err error
	if d.Trigger, err = condition.Encode(tree(r.Trigger)); err != nil {
		return Document{}, fmt.Errorf("rule %q trigger: %w", r.Title, err)
	}
	if c, ok := r.Preconditions.(*condition.Connector); r.Preconditions != nil && !(ok && len(c.Children) == 0) {
		if d.Preconditions, err = condition.Encode(r.Preconditions); err != nil {
			return Document{}, fmt.Errorf("rule %q preconditions: %w", r.Title, err)
		}
	}
	for i, a := range r.Actions {
		s, err := action.Encode(a)
		if err != nil {
			return Document{}, fmt.Errorf("rule %q actions[%d]: %w", r.Title, i, err)
		}
		d.Actions = append(d.Actions, s)
	}
	if !r.LastRun.IsZero() {
		d.LastRun = r.LastRun.UnixMilli()
	}
	return d, nil
}

// FromDocument decodes d into a Rule at position pos with a fresh ID.
func FromDocument(d Document, pos int) (Rule, error) {
	r := Rule{
		ID:           uuid.New().String(),
		Title:        d.Title,
		Enabled:      d.Enabled,
		UserAction:   d.UserAction,
		ReadOnly:     d.ReadOnly,
		AutoRemove:   d.AutoRemove,
		SystemAction: d.SystemAction,
		Position:     pos,
		Actions:      make([]action.Action, 0, len(d.Actions)),
	}
	var err error
	if d.Trigger == "" {
		r.Trigger = condition.NewConnector(condition.And)
	} else if r.Trigger, err = condition.Decode(d.Trigger); err != nil {
		return Rule{}, fmt.Errorf("rule %q trigger: %w", d.Title, err)
	}
	if d.Preconditions == "" {
		r.Preconditions = condition.NewConnector(condition.And)
	} else if r.Preconditions, err = condition.Decode(d.Preconditions); err != nil {
		return Rule{}, fmt.Errorf("rule %q preconditions: %w", d.Title, err)
	}
	for i, s := range d.Actions {
		a, err := action.Decode(s)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q actions[%d]: %w", d.Title, i, err)
		}
		r.Actions = append(r.Actions, a)
	}
	if d.LastRun > 0 {
		r.LastRun = time.UnixMilli(d.LastRun)
	}
	return r, nil
}

// EncodeDocument renders the whole rule list as one JSON array string.
func EncodeDocument(rules []Rule) (string, error) {
	docs := make([]Document, 0, len(rules))
	for _, r := range rules {
		d, err := ToDocument(r)
		if err != nil {
			return "", err
		}
		docs = append(docs, d)
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	return string(b), nil
}

// DecodeDocument parses a stored rule list. On a malformed element it
// returns the rules decoded before it together with the error.
func DecodeDocument(s string) ([]Rule, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	rules := make([]Rule, 0, len(raw))
	for i, msg := range raw {
		var d Document
		if err := json.Unmarshal(msg, &d); err != nil {
			return rules, fmt.Errorf("decode rules[%d]: %w", i, err)
		}
		r, err := FromDocument(d, i)
		if err != nil {
			return rules, fmt.Errorf("decode rules[%d]: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
