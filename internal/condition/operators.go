package condition

import (
	"fmt"
	"math"
	"strings"
)

// Comparator is the numeric/string comparison a leaf applies between the
// observed value and its threshold.
type Comparator string

const (
	IsLesser         Comparator = "IS_LESSER"
	IsEqualOrLesser  Comparator = "IS_EQUAL_OR_LESSER"
	IsEqual          Comparator = "IS_EQUAL"
	IsEqualOrGreater Comparator = "IS_EQUAL_OR_GREATER"
	IsGreater        Comparator = "IS_GREATER"
	IsNotAvailable   Comparator = "IS_NOT_AVAILABLE"
)

const epsilon = 1e-9

// Check applies c as "observed c threshold".
func (c Comparator) Check(observed, threshold float64) bool {
	switch c {
	case IsLesser:
		return observed < threshold
	case IsEqualOrLesser:
		return observed <= threshold+epsilon
	case IsEqual:
		return math.Abs(observed-threshold) < epsilon
	case IsEqualOrGreater:
		return observed >= threshold-epsilon
	case IsGreater:
		return observed > threshold
	}
	return false
}

// CheckString compares lexically with the same semantics as Check.
func (c Comparator) CheckString(observed, threshold string) bool {
	return c.Check(float64(strings.Compare(observed, threshold)), 0)
}

// Available resolves a comparison against a value that may be missing:
// a missing value only matches IS_NOT_AVAILABLE, and IS_NOT_AVAILABLE never
// matches a present value.
func (c Comparator) Available(observed float64, ok bool, threshold float64) bool {
	if !ok {
		return c == IsNotAvailable
	}
	if c == IsNotAvailable {
		return false
	}
	return c.Check(observed, threshold)
}

// Validate reports an unknown comparator.
func (c Comparator) Validate() error {
	switch c {
	case IsLesser, IsEqualOrLesser, IsEqual, IsEqualOrGreater, IsGreater, IsNotAvailable:
		return nil
	}
	return fmt.Errorf("unknown comparator %q", string(c))
}

func (c Comparator) symbol() string {
	switch c {
	case IsLesser:
		return "<"
	case IsEqualOrLesser:
		return "<="
	case IsEqual:
		return "=="
	case IsEqualOrGreater:
		return ">="
	case IsGreater:
		return ">"
	case IsNotAvailable:
		return "n/a"
	}
	return "?"
}

// ExistsComparator tests presence of a value.
type ExistsComparator string

const (
	Exists    ExistsComparator = "EXISTS"
	NotExists ExistsComparator = "NOT_EXISTS"
)

// Check reports whether present satisfies c.
func (c ExistsComparator) Check(present bool) bool {
	if c == NotExists {
		return !present
	}
	return present
}

// ConnectComparator selects which Bluetooth edge a trigger reacts to.
type ConnectComparator string

const (
	OnConnect    ConnectComparator = "ON_CONNECT"
	OnDisconnect ConnectComparator = "ON_DISCONNECT"
)

// LocationMode selects how a location trigger relates to its circle.
type LocationMode string

const (
	Inside   LocationMode = "INSIDE"
	Outside  LocationMode = "OUTSIDE"
	GoingIn  LocationMode = "GOING_IN"
	GoingOut LocationMode = "GOING_OUT"
)
