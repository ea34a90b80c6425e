// logging.go - structured logging configuration for the httpcore package.
//
// Package-level configuration for structured logging via logiface.
//
// Design Decision: a package-level logger is appropriate here because logging
// is an infrastructure cross-cutting concern, server instances share logging
// semantics, and it keeps the per-server option surface small. A per-server
// override is still available via WithLogger.

package httpcore

import (
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

var globalLogger struct {
	sync.RWMutex
	logger *logiface.Logger[logiface.Event]
}

// SetLogger sets the package-level structured logger. A nil logger disables
// package-level logging (logiface loggers are nil-safe).
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// getGlobalLogger safely retrieves the package-level logger, which may be nil.
func getGlobalLogger() *logiface.Logger[logiface.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}

// errorLimiter rate-limits repetitive error logs (parse errors, per-event
// dispatch errors) by category, so a hostile or broken peer cannot flood the
// log. Categories are small strings; the limiter evicts cold ones itself.
var errorLimiter = catrate.NewLimiter(map[time.Duration]int{
	time.Second: 5,
	time.Minute: 30,
})

// logAllowed reports whether an error log in the given category is within
// its rate budget.
func logAllowed(category string) bool {
	_, ok := errorLimiter.Allow(category)
	return ok
}
