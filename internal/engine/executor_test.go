package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/event"
	"github.com/gyaneshwarpardhi/automation/internal/execlog"
	"github.com/gyaneshwarpardhi/automation/internal/host"
	"github.com/gyaneshwarpardhi/automation/internal/store"
)

type pubCounter struct {
	mu    sync.Mutex
	kinds []event.Kind
}

func (p *pubCounter) Publish(ev event.Event) {
	p.mu.Lock()
	p.kinds = append(p.kinds, ev.Kind)
	p.mu.Unlock()
}

func (p *pubCounter) count(k event.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, got := range p.kinds {
		if got == k {
			n++
		}
	}
	return n
}

func TestExecutorPacingAndLog(t *testing.T) {
	st := store.New(nil)
	log := execlog.New()
	h := host.NewMemory(host.DefaultState(), nil)
	pub := &pubCounter{}
	x := NewExecutor(st, log, h, pub, 3*time.Second, 1100*time.Millisecond, nil)

	var sleeps []time.Duration
	x.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	fixed := time.Date(2024, 5, 1, 14, 3, 9, 0, time.Local)
	x.now = func() time.Time { return fixed }

	r := always("Morning",
		&action.Notification{Text: "wake"},
		&action.Notification{},
		&action.ProfileSwitch{Profile: "Missing"},
	)
	st.Add(r)
	stored, _ := st.At(0)

	stopped := x.Execute(context.Background(), stored)
	assert.False(t, stopped)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 1100 * time.Millisecond}, sleeps,
		"settle after each dispatched action, nothing after the invalid one")

	require.Eventually(t, func() bool { return log.Len() == 3 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{
		"Invalid action: Notification: ",
		"14:03:09 ☺ <b>Morning:</b> Notification: wake: OK",
		"14:03:09 ▼ <b>Morning:</b> " + (&action.ProfileSwitch{Profile: "Missing"}).ShortDescription() + `: profile "Missing" not found`,
	}, log.Entries())
	assert.Equal(t, 3, pub.count(event.KindUpdateGUI))

	got, _ := st.At(0)
	assert.Equal(t, fixed, got.LastRun)
}

func TestExecutorReportsStopProcessing(t *testing.T) {
	st := store.New(nil)
	x := NewExecutor(st, execlog.New(), host.NewMemory(host.DefaultState(), nil), nil, 0, 0, nil)
	r := always("halt", &action.StopProcessing{})
	assert.True(t, x.Execute(context.Background(), r))
	assert.False(t, x.Execute(context.Background(), always("go on")))
}
