package httpcore

import (
	"time"

	"github.com/joeycumines/logiface"
)

// serverOptions holds configuration options for Server creation.
type serverOptions struct {
	logger    *logiface.Logger[logiface.Event]
	keepAlive time.Duration
}

// --- Server Options ---

// Option configures a Server instance.
type Option interface {
	applyServer(*serverOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyServerFunc func(*serverOptions) error
}

func (o *optionImpl) applyServer(opts *serverOptions) error {
	return o.applyServerFunc(opts)
}

// WithLogger sets a per-server structured logger, overriding the package
// logger configured via SetLogger. Nil (the default) falls back to the
// package logger.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithKeepAlive sets the keep-alive timeout: the poll timeout, the cadence of
// the idle sweep, and the idle duration after which a quiet connection is
// shut down. Zero disables idle enforcement and makes the poller block
// indefinitely between events.
func WithKeepAlive(d time.Duration) Option {
	return &optionImpl{func(opts *serverOptions) error {
		opts.keepAlive = d
		return nil
	}}
}

// resolveOptions applies Option instances to serverOptions.
func resolveOptions(opts []Option) (*serverOptions, error) {
	cfg := &serverOptions{
		keepAlive: 5 * time.Second, // default
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyServer(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
