package geo

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by a Locator that cannot produce a position.
var ErrUnavailable = errors.New("location unavailable")

// Options mirror the knobs of a device geolocation request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	// MaxAge is the oldest cached fix the caller will accept.
	MaxAge time.Duration
}

// DefaultOptions are the settings used for check-ins.
var DefaultOptions = Options{HighAccuracy: true, Timeout: 10 * time.Second, MaxAge: 60 * time.Second}

// Fix is a position and the instant it was measured.
type Fix struct {
	Point
	At time.Time
}

// Locator acquires the caller's current position.
type Locator interface {
	Locate(ctx context.Context, opts Options) (Fix, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, opts Options) (Fix, error)

func (f LocatorFunc) Locate(ctx context.Context, opts Options) (Fix, error) { return f(ctx, opts) }

// Reported is a Locator for a fix measured elsewhere, such as coordinates sent by a client.
// A zero At is treated as "measured now".
func Reported(p Point, at time.Time) Locator {
	return LocatorFunc(func(ctx context.Context, _ Options) (Fix, error) {
		if err := ctx.Err(); err != nil {
			return Fix{}, err
		}
		if !p.Valid() {
			return Fix{}, ErrUnavailable
		}
		fix := Fix{Point: p, At: at}
		if fix.At.IsZero() {
			fix.At = time.Now()
		}
		return fix, nil
	})
}

// Unavailable is a Locator that always fails, for callers with no position source.
var Unavailable Locator = LocatorFunc(func(context.Context, Options) (Fix, error) {
	return Fix{}, ErrUnavailable
})
