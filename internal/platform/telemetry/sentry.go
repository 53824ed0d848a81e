package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"stackagent/internal/platform/config"
)

const defaultSentryEnvironment = "production"

// InitSentry starts error reporting when a DSN is configured. It returns
// false with no error when the DSN is empty, which turns reporting off.
func InitSentry(cfg config.SentryConfig) (bool, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return false, nil
	}

	opts := sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      strings.TrimSpace(cfg.Environment),
		Release:          strings.TrimSpace(cfg.Release),
		AttachStacktrace: true,
	}
	if opts.Environment == "" {
		opts.Environment = defaultSentryEnvironment
	}

	if err := sentry.Init(opts); err != nil {
		return false, fmt.Errorf("init sentry: %w", err)
	}
	return true, nil
}

// Flush blocks until buffered events are delivered or the timeout passes.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// Recover reports an in-flight panic before the process unwinds further.
func Recover() {
	sentry.Recover()
}
