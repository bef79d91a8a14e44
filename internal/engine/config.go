package engine

import "log/slog"

// Config controls bus policy.
type Config struct {
	// AllowCircularCall tolerates repeated (action, status) completions
	// with no retry budget left. It also turns every log into a ring of
	// LogMaxSize entries.
	AllowCircularCall bool `yaml:"allow_circular_call"`

	// LogMaxSize bounds each log when AllowCircularCall is set.
	// Zero means DefaultLogMaxSize.
	LogMaxSize int `yaml:"log_max_size"`

	// EnabledValidation checks handler return values against contracts.
	EnabledValidation bool `yaml:"enabled_validation"`

	// Bind and Providers seed every action container.
	Bind      map[string]string   `yaml:"bind"`
	Providers map[string]Provider `yaml:"-"`
}

// DefaultConfig returns the recommended configuration: validation on,
// circular calls rejected.
func DefaultConfig() Config {
	return Config{
		LogMaxSize:        DefaultLogMaxSize,
		EnabledValidation: true,
	}
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock sets the clock stamping trace entries.
func WithClock(c *Clock) Option {
	return func(b *Bus) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithRunIDGenerator sets the run id generator. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(b *Bus) {
		if g != nil {
			b.runIDs = g
		}
	}
}

// WithContractChecker sets the contract checker. Default: a TypeChecker
// with no registered contracts.
func WithContractChecker(c ContractChecker) Option {
	return func(b *Bus) {
		if c != nil {
			b.checker = c
		}
	}
}

// WithMetrics sets the Prometheus collectors. Default: DefaultMetrics().
func WithMetrics(m *Metrics) Option {
	return func(b *Bus) {
		if m != nil {
			b.metrics = m
		}
	}
}
