// Package clock abstracts time so overdue checks stay testable.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock returns the current time. Derived values that depend on "now"
// must sample it at evaluation time, never cache it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewSystemClock returns a Clock backed by the wall clock.
func NewSystemClock() Clock { return systemClock{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
