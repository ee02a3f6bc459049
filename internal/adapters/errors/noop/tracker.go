package noop

import (
	"context"

	"github.com/Tengfei-Z/AiTrader/pkg/errors"
)

// Tracker is a no-op error tracker used when tracking is disabled
type Tracker struct{}

// New creates a no-op tracker
func New() *Tracker {
	return &Tracker{}
}

// CaptureError drops the error
func (t *Tracker) CaptureError(_ context.Context, _ error, _ map[string]string) error {
	return nil
}

// CaptureMessage drops the message
func (t *Tracker) CaptureMessage(_ context.Context, _ string, _ errors.Level, _ map[string]string) error {
	return nil
}

// Flush is a no-op
func (t *Tracker) Flush(_ context.Context) error {
	return nil
}
