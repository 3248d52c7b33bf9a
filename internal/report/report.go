// Package report forwards panics and unexpected errors to Sentry.
// Every function is a no-op until Init is called with a non-empty DSN.
package report

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/teslashibe/go-headgesture/internal/log"
)

// FlushTimeout bounds how long a panic report may block the crashing goroutine.
const FlushTimeout = 5 * time.Second

var enabled atomic.Bool

// Init configures the Sentry client. An empty dsn disables reporting.
func Init(dsn, environment, release string) error {
	enabled.Store(false)
	if dsn == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	enabled.Store(true)
	return nil
}

// Enabled reports whether Sentry reporting is active.
func Enabled() bool {
	return enabled.Load()
}

// Recover must be deferred directly. It swallows a panic, logs it, and reports
// it with the given tags. The goroutine then returns normally.
func Recover(tags map[string]string) {
	r := recover()
	if r == nil {
		return
	}

	err, ok := r.(error)
	if !ok {
		err = errors.New(fmt.Sprint(r))
	}
	log.Error("recovered panic", "error", err, "tags", tags)

	if !Enabled() {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	hub.Recover(err)
	hub.Flush(FlushTimeout)
}

// CaptureError reports a non-fatal error with tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil || !Enabled() {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
	})
	hub.CaptureException(err)
}

// Flush waits for queued events to be sent.
func Flush(timeout time.Duration) {
	if Enabled() {
		sentry.Flush(timeout)
	}
}
