package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gyaneshwarpardhi/automation/internal/rule"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// ruleView is the decoded, human-readable form of a stored rule.
type ruleView struct {
	Index         int        `json:"index"`
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Enabled       bool       `json:"enabled"`
	UserAction    bool       `json:"userAction"`
	SystemAction  bool       `json:"systemAction"`
	AutoRemove    bool       `json:"autoRemove"`
	ReadOnly      bool       `json:"readOnly"`
	Position      int        `json:"position"`
	LastRun       *time.Time `json:"lastRun,omitempty"`
	Trigger       string     `json:"trigger"`
	Preconditions string     `json:"preconditions,omitempty"`
	Actions       []string   `json:"actions"`
}

func viewOf(index int, r rule.Rule) ruleView {
	v := ruleView{
		Index:        index,
		ID:           r.ID,
		Title:        r.Title,
		Enabled:      r.Enabled,
		UserAction:   r.UserAction,
		SystemAction: r.SystemAction,
		AutoRemove:   r.AutoRemove,
		ReadOnly:     r.ReadOnly,
		Position:     r.Position,
		Actions:      make([]string, 0, len(r.Actions)),
	}
	if !r.LastRun.IsZero() {
		lr := r.LastRun
		v.LastRun = &lr
	}
	if r.Trigger != nil {
		v.Trigger = r.Trigger.FriendlyDescription()
	}
	if r.Preconditions != nil {
		v.Preconditions = r.Preconditions.FriendlyDescription()
	}
	for _, a := range r.Actions {
		v.Actions = append(v.Actions, a.ShortDescription())
	}
	return v
}
