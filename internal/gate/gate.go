// Package gate decides, once per pass, whether common (non-system) rules may
// run.
package gate

import (
	"log/slog"

	"github.com/gyaneshwarpardhi/automation/internal/event"
	"github.com/gyaneshwarpardhi/automation/internal/execlog"
	"github.com/gyaneshwarpardhi/automation/internal/host"
	"github.com/gyaneshwarpardhi/automation/internal/metrics"
)

// Execution-log lines for the built-in checks.
const (
	MsgLoopDisabled   = "Loop disabled"
	MsgDisconnected   = "Disconnected"
	MsgWaitingForPump = "Waiting for pump"
)

// Publisher receives UI-refresh notifications.
type Publisher interface {
	Publish(event.Event)
}

// Decision is the gate's verdict for one pass.
type Decision struct {
	CommonEventsEnabled bool
	Reasons             []string
}

// Gate evaluates the global checks.
type Gate struct {
	loop        host.LoopStatus
	pump        host.PumpStatus
	constraints host.ConstraintChecker
	log         *execlog.Log
	pub         Publisher
	logger      *slog.Logger
}

// New wires a Gate. pub and logger may be nil.
func New(loop host.LoopStatus, pump host.PumpStatus, constraints host.ConstraintChecker, log *execlog.Log, pub Publisher, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{loop: loop, pump: pump, constraints: constraints, log: log, pub: pub, logger: logger}
}

// Evaluate runs every check in order. Each failing check is logged on its
// own; any failure disables common rules for the pass.
func (g *Gate) Evaluate() Decision {
	d := Decision{CommonEventsEnabled: true}
	loopOff := !g.loop.IsEnabled()

	if g.loop.IsSuspended() || loopOff {
		g.block(&d, "loop_disabled", MsgLoopDisabled)
	}
	if g.loop.IsDisconnected() || loopOff {
		g.block(&d, "loop_disconnected", MsgDisconnected)
	}
	if g.pump.IsSuspended() {
		g.block(&d, "pump_suspended", MsgWaitingForPump)
	}
	if ok, reason := g.constraints.IsAutomationEnabled(); !ok {
		g.block(&d, "constraint", reason)
	}
	return d
}

func (g *Gate) block(d *Decision, check, msg string) {
	g.logger.Debug("gate check failed", "check", check, "reason", msg)
	metrics.GateBlocked.WithLabelValues(check).Inc()
	g.log.Add(msg)
	if g.pub != nil {
		g.pub.Publish(event.New(event.KindUpdateGUI, nil))
	}
	d.CommonEventsEnabled = false
	d.Reasons = append(d.Reasons, msg)
}
