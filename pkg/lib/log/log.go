// Package log exposes the logger accepted by the wrapperctl SDK.
//
// The SDK is silent by default. Pass [FromLogrus] to reuse a logrus logger,
// or implement [Logger] to bridge any other logging library.
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/slok/wrapperctl/internal/log"
	loglogrus "github.com/slok/wrapperctl/internal/log/logrus"
)

// Logger is the logger used by the SDK. Only the format methods need a real
// implementation for most integrations, the key value methods can return the
// same logger.
type Logger = log.Logger

// Kv are structured key values attached to the log lines.
type Kv = log.Kv

// Noop discards everything.
var Noop = log.Noop

// FromLogrus adapts a logrus entry. A nil entry uses the logrus standard logger.
func FromLogrus(e *logrus.Entry) Logger {
	if e == nil {
		e = logrus.NewEntry(logrus.StandardLogger())
	}
	return loglogrus.NewLogrus(e).WithValues(Kv{"component": "wrapperctl-sdk"})
}
