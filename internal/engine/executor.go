package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/automation/internal/action"
	"github.com/gyaneshwarpardhi/automation/internal/event"
	"github.com/gyaneshwarpardhi/automation/internal/execlog"
	"github.com/gyaneshwarpardhi/automation/internal/metrics"
	"github.com/gyaneshwarpardhi/automation/internal/rule"
	"github.com/gyaneshwarpardhi/automation/internal/store"
)

const (
	glyphSuccess = "☺"
	glyphFailure = "▼"
)

// Executor runs a candidate rule's action list.
type Executor struct {
	store        *store.Store
	log          *execlog.Log
	svc          action.Services
	pub          store.Publisher
	settleDelay  time.Duration
	postRunDelay time.Duration
	now          func() time.Time
	sleep        func(time.Duration)
	logger       *slog.Logger
}

// NewExecutor wires an Executor. pub and logger may be nil.
func NewExecutor(st *store.Store, log *execlog.Log, svc action.Services, pub store.Publisher, settle, postRun time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:        st,
		log:          log,
		svc:          svc,
		pub:          pub,
		settleDelay:  settle,
		postRunDelay: postRun,
		now:          time.Now,
		sleep:        time.Sleep,
		logger:       logger,
	}
}

// Execute dispatches every valid action of r in order, pausing the settle
// delay after each dispatch. It does not wait for the actions to complete.
// Afterwards it records the run on the stored rule and removes it when
// AutoRemove is set. It reports whether a stop-processing action ran.
func (x *Executor) Execute(ctx context.Context, r rule.Rule) (stopped bool) {
	// Completions may land after the pass (or the daemon) is done with ctx.
	dispatchCtx := context.WithoutCancel(ctx)

	metrics.RulesFired.Inc()
	x.logger.Debug("executing rule", "rule", r.Title, "actions", len(r.Actions))

	for _, a := range r.Actions {
		a.SetTitle(r.Title)
		if !a.Valid() {
			line := "Invalid action: " + a.ShortDescription()
			x.log.Add(line)
			x.logger.Debug(line, "rule", r.Title)
			x.refresh()
			metrics.ActionsExecuted.WithLabelValues(a.Kind(), "invalid").Inc()
			continue
		}
		if _, ok := a.(*action.StopProcessing); ok {
			stopped = true
		}
		a.Do(dispatchCtx, x.svc, x.completion(r.Title, a))
		x.sleep(x.settleDelay)
	}

	x.sleep(x.postRunDelay)
	x.store.MarkRun(r.ID, x.now())
	if r.AutoRemove {
		x.store.Remove(r)
	}
	return stopped
}

func (x *Executor) completion(title string, a action.Action) func(action.Result) {
	desc := a.ShortDescription()
	kind := a.Kind()
	return func(res action.Result) {
		glyph, status := glyphSuccess, "success"
		if !res.Success {
			glyph, status = glyphFailure, "failure"
		}
		var sb strings.Builder
		sb.WriteString(x.now().Format("15:04:05"))
		sb.WriteString(" ")
		sb.WriteString(glyph)
		sb.WriteString(" <b>")
		sb.WriteString(title)
		sb.WriteString(":</b> ")
		sb.WriteString(desc)
		sb.WriteString(": ")
		sb.WriteString(res.Comment)
		line := sb.String()

		x.log.Add(line)
		x.logger.Debug("executed", "line", line)
		metrics.ActionsExecuted.WithLabelValues(kind, status).Inc()
		x.refresh()
	}
}

func (x *Executor) refresh() {
	if x.pub != nil {
		x.pub.Publish(event.New(event.KindUpdateGUI, nil))
	}
}
