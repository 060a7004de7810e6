package remotestore

import (
	"github.com/juju/clock"
	log "github.com/sirupsen/logrus"
)

// Config holds the tunables of a Store. There is no external file
// format or CLI binding for Config; callers construct it with New and
// a list of Options, the way the teacher's connection pools are
// configured.
type Config struct {
	maxPendingWrites int
	failureThreshold int
	clock            clock.Clock
	log              *log.Entry
}

// Option configures a Config. See WithMaxPendingWrites,
// WithFailureThreshold, WithClock and WithLogger.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(cfg *Config) { f(cfg) }

// WithMaxPendingWrites overrides MaxPendingWrites for a single Store.
// Intended for tests that want to exercise the bound with a smaller
// number than the production default.
func WithMaxPendingWrites(n int) Option {
	return optionFunc(func(cfg *Config) { cfg.maxPendingWrites = n })
}

// WithFailureThreshold overrides FailureThreshold for a single Store.
func WithFailureThreshold(n int) Option {
	return optionFunc(func(cfg *Config) { cfg.failureThreshold = n })
}

// WithClock injects a clock.Clock, allowing deterministic control over
// write_stream_open_time in tests.
func WithClock(c clock.Clock) Option {
	return optionFunc(func(cfg *Config) { cfg.clock = c })
}

// WithLogger overrides the *log.Entry a Store logs through, so callers
// can attach their own structured fields (e.g. a user ID).
func WithLogger(entry *log.Entry) Option {
	return optionFunc(func(cfg *Config) { cfg.log = entry })
}

func newConfig(opts []Option) *Config {
	cfg := &Config{
		maxPendingWrites: MaxPendingWrites,
		failureThreshold: FailureThreshold,
		clock:            clock.WallClock,
		log:              log.WithField("component", "remotestore"),
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}
