package alerting

import (
	"context"
	"errors"

	"dealwatch/internal/engine"
)

// Notifier delivers a price-drop alert to one sink.
type Notifier interface {
	Notify(ctx context.Context, alert engine.Alert) error
}

// Multi fans an alert out to every configured sink. A failing sink
// never blocks the others.
type Multi struct {
	sinks []Notifier
}

// NewMulti builds a fan-out notifier.
func NewMulti(sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks}
}

// Notify dispatches to all sinks and joins their failures.
func (m *Multi) Notify(ctx context.Context, alert engine.Alert) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Multi)(nil)
