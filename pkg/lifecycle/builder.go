package lifecycle

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// Builder configures a [Service].
//
//	svc, err := lifecycle.NewBuilder("gatekeeper", version).
//	    WithOnStart(func(ctx context.Context) error { return store.Health(ctx) }).
//	    WithCheck("roles", store.Health).
//	    Build()
type Builder struct {
	name          string
	version       string
	logger        *slog.Logger
	now           func() time.Time
	onStart       Hook
	onStop        Hook
	checks        map[string]Check
	stateHandlers []StateChangeHandler
}

// NewBuilder starts a Builder. name and version are required.
func NewBuilder(name, version string) *Builder {
	return &Builder{name: name, version: version, checks: map[string]Check{}}
}

// WithLogger sets the logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now for uptime.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithOnStart(hook Hook) *Builder {
	b.onStart = hook
	return b
}

func (b *Builder) WithOnStop(hook Hook) *Builder {
	b.onStop = hook
	return b
}

// WithCheck registers a dependency check reported by Service.Report. A
// later check with the same name replaces the earlier one.
func (b *Builder) WithCheck(name string, check Check) *Builder {
	b.checks[name] = check
	return b
}

// OnStateChange adds a transition observer.
func (b *Builder) OnStateChange(handler StateChangeHandler) *Builder {
	b.stateHandlers = append(b.stateHandlers, handler)
	return b
}

// Build validates the configuration. The Service starts in
// [StateUnknown].
func (b *Builder) Build() (*Service, error) {
	if b.name == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service name must not be empty")
	}
	if b.version == "" {
		return nil, sserr.New(sserr.CodeValidation, "lifecycle: service version must not be empty")
	}
	checks := make(map[string]Check, len(b.checks))
	for name, c := range b.checks {
		if name == "" || c == nil {
			return nil, sserr.New(sserr.CodeValidation, "lifecycle: checks need a name and a function")
		}
		checks[name] = c
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	return &Service{
		name:          b.name,
		version:       b.version,
		state:         StateUnknown,
		tracer:        otel.Tracer(tracerName),
		logger:        logger,
		now:           now,
		onStart:       b.onStart,
		onStop:        b.onStop,
		checks:        checks,
		stateHandlers: append([]StateChangeHandler(nil), b.stateHandlers...),
	}, nil
}
