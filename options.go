package bootstage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures a Coordinator.
type Option func(*config)

type config struct {
	log          Logger
	registerer   prometheus.Registerer
	defaultOrder int
}

// WithLogger makes the Coordinator log to the given zerolog.Logger.
func WithLogger(l zerolog.Logger) Option {
	return func(cfg *config) {
		cfg.log = NewLogger(l)
	}
}

// WithSink makes the Coordinator report to the given Logger.
func WithSink(l Logger) Option {
	return func(cfg *config) {
		cfg.log = l
	}
}

// WithRegisterer registers the metrics of the Coordinator with reg. Without
// it, metrics are collected but not exported. Coordinators registered with the
// same reg share their collectors.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *config) {
		cfg.registerer = reg
	}
}

// WithDefaultOrder sets the order hooks are registered at when no AtOrder
// option is given.
func WithDefaultOrder(order int) Option {
	return func(cfg *config) {
		cfg.defaultOrder = order
	}
}

// BeginOption configures Coordinator.Begin.
type BeginOption func(*beginConfig)

type beginConfig struct {
	timeout time.Duration
}

// WithTimeout arms the timeout of the stage once it has begun.
func WithTimeout(d time.Duration) BeginOption {
	return func(cfg *beginConfig) {
		cfg.timeout = d
	}
}

// LaunchOption configures Coordinator.Launch.
type LaunchOption func(*launchConfig)

type launchConfig struct {
	others    bool
	except    map[string]struct{}
	beginOnly bool
}

// WithOthers launches every registered stage that was not named in the order.
func WithOthers() LaunchOption {
	return func(cfg *launchConfig) {
		cfg.others = true
	}
}

// WithOthersExcept is WithOthers, but leaves the named stages alone.
func WithOthersExcept(names ...string) LaunchOption {
	return func(cfg *launchConfig) {
		cfg.others = true
		if cfg.except == nil {
			cfg.except = make(map[string]struct{}, len(names))
		}
		for _, name := range names {
			cfg.except[name] = struct{}{}
		}
	}
}

// BeginOnly begins launched stages without ending them.
func BeginOnly() LaunchOption {
	return func(cfg *launchConfig) {
		cfg.beginOnly = true
	}
}
