// Package host declares the collaborators the automation core consumes and
// provides an in-process implementation of them.
package host

// LoopStatus reports the closed-loop controller's state.
type LoopStatus interface {
	IsSuspended() bool
	IsDisconnected() bool
	IsEnabled() bool
}

// PumpStatus reports the active delivery device's state.
type PumpStatus interface {
	IsSuspended() bool
}

// ConstraintChecker decides whether automation may run at all. reason
// aggregates every limiting constraint when allowed is false.
type ConstraintChecker interface {
	IsAutomationEnabled() (allowed bool, reason string)
}

// LocationService is the host's location capability. Start and Stop are
// idempotent.
type LocationService interface {
	Start()
	Stop()
}
