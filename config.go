package maph

// config.go defines the internal configuration object and the functional
// options that can be passed to Create/Open. Shaped after arena-cache's
// Option/config/defaultConfig/applyOptions split: options never allocate
// unless necessary, and the struct itself stays unexported so the public
// surface is Option-only.

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/theflywheel/maph/internal/hasher"
)

// Option configures a Store at Create/Open time.
type Option func(*config)

type config struct {
	numSlots    uint32
	maxProbes   int
	readOnly    bool
	cacheSlots  int
	journalPath string

	logger   *zap.Logger
	registry *prometheus.Registry
}

const defaultNumSlots = 1024

func defaultConfig() *config {
	return &config{
		numSlots:  defaultNumSlots,
		maxProbes: hasher.DefaultMaxProbes,
		logger:    zap.NewNop(),
	}
}

// WithNumSlots sets the table's fixed slot count. Only meaningful for
// Create; Open reads the slot count from the file's header.
func WithNumSlots(n uint32) Option {
	return func(c *config) { c.numSlots = n }
}

// WithMaxProbes bounds the linear-probing search length. Default is
// hasher.DefaultMaxProbes.
func WithMaxProbes(n int) Option {
	return func(c *config) { c.maxProbes = n }
}

// WithReadOnly opens the store's backing file read-only; any mutation
// returns ErrPermissionDenied. Only meaningful for Open.
func WithReadOnly() Option {
	return func(c *config) { c.readOnly = true }
}

// WithCache enables a transparent LRU read cache of the given slot
// capacity in front of the storage backend. Disabled by default.
func WithCache(slots int) Option {
	return func(c *config) { c.cacheSlots = slots }
}

// WithJournalPath overrides the journal file location. Defaults to the
// store path with a ".journal" suffix; ignored for in-memory stores unless
// explicitly set.
func WithJournalPath(path string) Option {
	return func(c *config) { c.journalPath = path }
}

// WithLogger plugs an external zap.Logger. The store never logs on the
// hot Get/Set path; only lifecycle and slow-path events are emitted.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

var (
	errInvalidNumSlots  = errors.New("maph: num_slots must be > 0")
	errInvalidMaxProbes = errors.New("maph: max_probes must be > 0")
)

func applyOptions(opts []Option) (*config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.numSlots == 0 {
		return nil, errInvalidNumSlots
	}
	if cfg.maxProbes <= 0 {
		return nil, errInvalidMaxProbes
	}

	return cfg, nil
}
