// Package engine runs evaluation passes over the rule store: on a fixed
// interval and whenever a relevant external event arrives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/condition"
	"github.com/gyaneshwarpardhi/automation/internal/event"
	"github.com/gyaneshwarpardhi/automation/internal/execlog"
	"github.com/gyaneshwarpardhi/automation/internal/gate"
	"github.com/gyaneshwarpardhi/automation/internal/host"
	"github.com/gyaneshwarpardhi/automation/internal/kv"
	"github.com/gyaneshwarpardhi/automation/internal/metrics"
	"github.com/gyaneshwarpardhi/automation/internal/store"
)

// PrefLocation is the preference key that restarts the location service.
const PrefLocation = "location"

// Pass request reasons, used as metric labels.
const (
	ReasonTimer    = "timer"
	ReasonLocation = "location"
	ReasonCharging = "charging"
	ReasonNetwork  = "network"
	ReasonBT       = "bt"
	ReasonAPI      = "api"
)

var (
	ErrNotStarted  = errors.New("engine not started")
	ErrNotUserRule = errors.New("rule is not an enabled user action")
)

// Config tunes the scheduler and executor.
type Config struct {
	Interval     time.Duration
	SettleDelay  time.Duration
	PostRunDelay time.Duration
	QueueDepth   int
	// LogKeep bounds the execution log after every pass. Zero keeps everything.
	LogKeep int
	Key     string
}

// DefaultConfig returns the production pacing.
func DefaultConfig() Config {
	return Config{
		Interval:     time.Minute,
		SettleDelay:  3 * time.Second,
		PostRunDelay: 1100 * time.Millisecond,
		QueueDepth:   1,
		Key:          DefaultKey,
	}
}

// Deps are the collaborators the engine runs against.
type Deps struct {
	Store       *store.Store
	Log         *execlog.Log
	Bus         *event.Bus
	KV          kv.Store
	Env         condition.Env
	Services    action.Services
	Loop        host.LoopStatus
	Pump        host.PumpStatus
	Constraints host.ConstraintChecker
	Location    host.LocationService
	Logger      *slog.Logger
}

// Engine is the scheduler. All passes and direct user-rule runs go through
// one worker, so they never overlap.
type Engine struct {
	conf     Config
	store    *store.Store
	log      *execlog.Log
	bus      *event.Bus
	env      condition.Env
	location host.LocationService
	gate     *gate.Gate
	exec     *Executor
	persist  *Persister
	logger   *slog.Logger
	now      func() time.Time

	btMu     sync.Mutex
	btEvents []event.BTChange

	mu         sync.Mutex
	queue      *passQueue
	unsubs     []func()
	stopTicker context.CancelFunc
	cancel     context.CancelFunc
	tickerDone chan struct{}
}

// New wires an Engine. It does nothing until Start.
func New(d Deps, conf Config) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if conf.Interval <= 0 {
		conf.Interval = def.Interval
	}
	if conf.QueueDepth <= 0 {
		conf.QueueDepth = def.QueueDepth
	}
	if conf.Key == "" {
		conf.Key = def.Key
	}
	return &Engine{
		conf:     conf,
		store:    d.Store,
		log:      d.Log,
		bus:      d.Bus,
		env:      d.Env,
		location: d.Location,
		gate:     gate.New(d.Loop, d.Pump, d.Constraints, d.Log, d.Bus, logger),
		exec:     NewExecutor(d.Store, d.Log, d.Services, d.Bus, conf.SettleDelay, conf.PostRunDelay, logger),
		persist:  NewPersister(d.KV, conf.Key, d.Store, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Load fills the store from persistence.
func (e *Engine) Load(ctx context.Context) error {
	return e.persist.Load(ctx)
}

// Start acquires the location service, subscribes to the bus and arms the
// ticker. The engine keeps ctx's values but not its cancellation: it runs
// until Shutdown, so a pass in flight when the caller's context ends still
// finishes and persists.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queue != nil {
		return
	}

	ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.location.Start()
	e.queue = newPassQueue(ctx, e.conf.QueueDepth, e.runJob)

	e.unsubs = append(e.unsubs,
		e.bus.Subscribe(event.KindPreferenceChanged, e.onPreferenceChanged),
		e.bus.Subscribe(event.KindRuleSetChanged, func(event.Event) {
			if err := e.persist.Save(ctx); err != nil {
				e.logger.Error("persist rules", "err", err)
			}
		}),
		e.bus.Subscribe(event.KindLocationChanged, e.onLocationChanged),
		e.bus.Subscribe(event.KindChargingChanged, func(event.Event) { e.TriggerPass(ReasonCharging) }),
		e.bus.Subscribe(event.KindNetworkChanged, func(event.Event) { e.TriggerPass(ReasonNetwork) }),
		e.bus.Subscribe(event.KindBTChanged, e.onBTChanged),
	)

	tickCtx, stop := context.WithCancel(ctx)
	e.stopTicker = stop
	e.tickerDone = make(chan struct{})
	go e.tick(tickCtx, e.tickerDone)

	e.logger.Info("engine started", "interval", e.conf.Interval, "settle_delay", e.conf.SettleDelay, "post_run_delay", e.conf.PostRunDelay)
}

func (e *Engine) tick(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(e.conf.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.TriggerPass(ReasonTimer)
		}
	}
}

func (e *Engine) onPreferenceChanged(ev event.Event) {
	var key string
	switch p := ev.Payload.(type) {
	case event.PreferenceChange:
		key = p.Key
	case *event.PreferenceChange:
		key = p.Key
	}
	if key != PrefLocation {
		return
	}
	e.logger.Info("location preference changed, restarting location service")
	e.location.Stop()
	e.location.Start()
}

func (e *Engine) onLocationChanged(ev event.Event) {
	if p, ok := ev.Payload.(event.LocationChange); ok {
		e.logger.Debug("grabbed location", "lat", p.Latitude, "lon", p.Longitude, "provider", p.Provider)
	}
	e.TriggerPass(ReasonLocation)
}

func (e *Engine) onBTChanged(ev event.Event) {
	var bt event.BTChange
	switch p := ev.Payload.(type) {
	case event.BTChange:
		bt = p
	case *event.BTChange:
		bt = *p
	default:
		e.logger.Warn("bt event without payload", "event_id", ev.ID)
		return
	}
	e.logger.Debug("grabbed bt event", "state", bt.State, "device", bt.DeviceName)
	e.btMu.Lock()
	e.btEvents = append(e.btEvents, bt)
	e.btMu.Unlock()
	e.TriggerPass(ReasonBT)
}

// TriggerPass requests a pass without waiting for it. It returns false when
// the request was coalesced into one already queued.
func (e *Engine) TriggerPass(reason string) bool {
	q := e.passQueue()
	if q == nil {
		return false
	}
	metrics.PassRequests.WithLabelValues(reason).Inc()
	if !q.TrySubmit(job{reason: reason, run: e.pass}) {
		metrics.PassRequestsDropped.Inc()
		return false
	}
	return true
}

// RunPass queues a pass and waits for it to finish.
func (e *Engine) RunPass(ctx context.Context, reason string) error {
	q := e.passQueue()
	if q == nil {
		return ErrNotStarted
	}
	metrics.PassRequests.WithLabelValues(reason).Inc()
	return q.Do(ctx, job{reason: reason, run: e.pass})
}

// RunUserRule runs the user rule at index on the pass worker, ignoring the
// gate. The rule's trees are still evaluated and it reports false when they
// do not hold.
func (e *Engine) RunUserRule(ctx context.Context, index int) (bool, error) {
	q := e.passQueue()
	if q == nil {
		return false, ErrNotStarted
	}
	var ran atomic.Bool
	err := q.Do(ctx, job{reason: "user", run: func(ctx context.Context) error {
		r, ok := e.store.At(index)
		if !ok {
			return store.ErrIndexOutOfRange
		}
		if !r.Enabled || !r.UserAction {
			return ErrNotUserRule
		}
		if !r.Candidate(e.evalContext(e.snapshotBT())) {
			return nil
		}
		ran.Store(true)
		e.exec.Execute(ctx, r)
		return e.persist.Save(ctx)
	}})
	return ran.Load(), err
}

// QueueUtilization returns waiting pass requests over queue depth (0 to 1).
func (e *Engine) QueueUtilization() float64 {
	q := e.passQueue()
	if q == nil || q.Cap() == 0 {
		return 0
	}
	return float64(q.Len()) / float64(q.Cap())
}

// Running reports whether the engine has been started and not shut down.
func (e *Engine) Running() bool {
	return e.passQueue() != nil
}

func (e *Engine) passQueue() *passQueue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue
}

func (e *Engine) runJob(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PassFailures.Inc()
			e.logger.Error("pass panicked", "reason", j.reason, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s pass: panic: %v", j.reason, r)
		}
	}()
	return j.run(ctx)
}

func (e *Engine) snapshotBT() []event.BTChange {
	e.btMu.Lock()
	defer e.btMu.Unlock()
	out := make([]event.BTChange, len(e.btEvents))
	copy(out, e.btEvents)
	return out
}

// dropBT removes the first n buffered events, the ones visible to the pass
// that just ended.
func (e *Engine) dropBT(n int) {
	e.btMu.Lock()
	defer e.btMu.Unlock()
	if n > len(e.btEvents) {
		n = len(e.btEvents)
	}
	e.btEvents = append([]event.BTChange(nil), e.btEvents[n:]...)
}

func (e *Engine) evalContext(bt []event.BTChange) condition.EvalContext {
	return condition.EvalContext{Env: e.env, Now: e.now(), BTEvents: bt}
}

func (e *Engine) pass(ctx context.Context) error {
	start := time.Now()
	passID := uuid.New().String()
	logger := e.logger.With("pass_id", passID)
	defer func() {
		metrics.Passes.Inc()
		metrics.PassDuration.Observe(time.Since(start).Seconds())
	}()

	decision := e.gate.Evaluate()
	rules := e.store.Snapshot()
	bt := e.snapshotBT()
	logger.Debug("pass started", "rules", len(rules), "common_enabled", decision.CommonEventsEnabled, "bt_events", len(bt))

	for _, r := range rules {
		if !r.Enabled || r.UserAction {
			continue
		}
		if !r.Candidate(e.evalContext(bt)) {
			continue
		}
		if !r.SystemAction && !decision.CommonEventsEnabled {
			logger.Debug("rule held by gate", "rule", r.Title)
			continue
		}
		if e.exec.Execute(ctx, r) {
			logger.Debug("stop processing", "rule", r.Title)
			break
		}
	}

	e.dropBT(len(bt))
	if e.conf.LogKeep > 0 {
		e.log.Trim(e.conf.LogKeep)
	}
	if err := e.persist.Save(ctx); err != nil {
		logger.Error("persist rules", "err", err)
	}
	logger.Debug("pass finished", "duration", time.Since(start))
	return nil
}

// Shutdown stops the ticker, unsubscribes, releases the location service,
// lets queued passes finish and clears the store.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	q := e.queue
	stop, done, cancel := e.stopTicker, e.tickerDone, e.cancel
	unsubs := e.unsubs
	e.queue, e.unsubs = nil, nil
	e.mu.Unlock()
	if q == nil {
		return
	}

	stop()
	<-done
	for _, u := range unsubs {
		u()
	}
	e.location.Stop()
	q.Drain()
	cancel()
	e.store.Clear()
	e.logger.Info("engine stopped")
}
