// Package store holds the ordered rule list shared by the scheduler and
// every event producer.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/automation/internal/event"
	"github.com/gyaneshwarpardhi/automation/internal/metrics"
	"github.com/gyaneshwarpardhi/automation/internal/rule"
)

// ErrIndexOutOfRange is returned by index-addressed mutations.
var ErrIndexOutOfRange = errors.New("rule index out of range")

// Publisher receives the store's "data changed" notifications.
type Publisher interface {
	Publish(event.Event)
}

// Store is the ordered rule collection. Every call is one exclusive critical
// section; rules go in and come out as deep copies so no caller holds a
// reference into the list.
type Store struct {
	mu    sync.Mutex
	rules []rule.Rule
	pub   Publisher
}

// New creates an empty Store. pub may be nil.
func New(pub Publisher) *Store {
	return &Store{pub: pub}
}

func (s *Store) changed() {
	metrics.Rules.Set(float64(s.Size()))
	if s.pub != nil {
		s.pub.Publish(event.New(event.KindRuleSetChanged, nil))
	}
}

func prepare(r rule.Rule) rule.Rule {
	c := r.Clone()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return c
}

// Add appends r, sets its Position to its index and notifies. Titles are not
// deduplicated.
func (s *Store) Add(r rule.Rule) {
	r = prepare(r)
	s.mu.Lock()
	r.Position = len(s.rules)
	s.rules = append(s.rules, r)
	s.mu.Unlock()
	s.changed()
}

// AddIfNotExists appends r unless a rule with the same title exists.
func (s *Store) AddIfNotExists(r rule.Rule) bool {
	r = prepare(r)
	s.mu.Lock()
	for _, e := range s.rules {
		if e.Title == r.Title {
			s.mu.Unlock()
			return false
		}
	}
	s.rules = append(s.rules, r)
	s.mu.Unlock()
	s.changed()
	return true
}

// RemoveIfExists removes every rule whose title equals r's, scanning from the
// end, and notifies once per removed rule. It reports whether any matched.
func (s *Store) RemoveIfExists(r rule.Rule) bool {
	s.mu.Lock()
	removed := 0
	for i := len(s.rules) - 1; i >= 0; i-- {
		if s.rules[i].Title == r.Title {
			s.rules = append(s.rules[:i:i], s.rules[i+1:]...)
			removed++
		}
	}
	s.mu.Unlock()
	for i := 0; i < removed; i++ {
		s.changed()
	}
	return removed > 0
}

// Set replaces the rule at index.
func (s *Store) Set(r rule.Rule, index int) error {
	r = prepare(r)
	s.mu.Lock()
	if index < 0 || index >= len(s.rules) {
		n := len(s.rules)
		s.mu.Unlock()
		return fmt.Errorf("set %d of %d: %w", index, n, ErrIndexOutOfRange)
	}
	s.rules[index] = r
	s.mu.Unlock()
	s.changed()
	return nil
}

// RemoveAt removes the rule at index. Out of range is a silent no-op.
func (s *Store) RemoveAt(index int) bool {
	s.mu.Lock()
	if index < 0 || index >= len(s.rules) {
		s.mu.Unlock()
		return false
	}
	s.rules = append(s.rules[:index:index], s.rules[index+1:]...)
	s.mu.Unlock()
	s.changed()
	return true
}

// Remove deletes the rule carrying r's ID without notifying.
func (s *Store) Remove(r rule.Rule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.rules {
		if e.ID == r.ID {
			s.rules = append(s.rules[:i:i], s.rules[i+1:]...)
			return true
		}
	}
	return false
}

// Swap exchanges two positions and notifies.
func (s *Store) Swap(i, j int) error {
	s.mu.Lock()
	n := len(s.rules)
	if i < 0 || i >= n || j < 0 || j >= n {
		s.mu.Unlock()
		return fmt.Errorf("swap %d,%d of %d: %w", i, j, n, ErrIndexOutOfRange)
	}
	s.rules[i], s.rules[j] = s.rules[j], s.rules[i]
	s.mu.Unlock()
	s.changed()
	return nil
}

// At returns a copy of the rule at index.
func (s *Store) At(index int) (rule.Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.rules) {
		return rule.Rule{}, false
	}
	return s.rules[index].Clone(), true
}

// Size returns the number of rules.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rules)
}

// UserEvents returns the enabled user-invoked rules.
func (s *Store) UserEvents() []rule.Rule {
	var out []rule.Rule
	for _, r := range s.Snapshot() {
		if r.UserAction && r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Snapshot returns a deep copy of the list in store order.
func (s *Store) Snapshot() []rule.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rule.Rule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Clone()
	}
	return out
}

// Replace swaps in a freshly loaded list without notifying.
func (s *Store) Replace(rules []rule.Rule) {
	next := make([]rule.Rule, len(rules))
	for i, r := range rules {
		next[i] = prepare(r)
	}
	s.mu.Lock()
	s.rules = next
	s.mu.Unlock()
	metrics.Rules.Set(float64(len(next)))
}

// MarkRun records t as the last run of the rule with id.
func (s *Store) MarkRun(id string, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules[i].LastRun = t
			return true
		}
	}
	return false
}

// Clear drops every rule. Used at shutdown.
func (s *Store) Clear() {
	s.mu.Lock()
	s.rules = nil
	s.mu.Unlock()
}
