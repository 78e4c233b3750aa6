package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

const tracerName = "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/lifecycle"

// DefaultCheckTimeout bounds each dependency check in Report when the
// caller's context has no deadline.
const DefaultCheckTimeout = 3 * time.Second

// StateChangeHandler is called with the previous and new state on every
// transition. Handlers run under the state mutex and must not call back
// into the Service. A panicking handler is recovered and logged.
type StateChangeHandler func(old, new State)

// Hook runs during Start or Stop. An error moves the Service to
// [StateFailed].
type Hook func(ctx context.Context) error

// Check tests one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Report is a health snapshot suitable for a health endpoint.
type Report struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	State        State             `json:"state"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	Uptime       time.Duration     `json:"uptime,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Healthy reports whether the service is running and every dependency
// answered.
func (r Report) Healthy() bool {
	if r.State != StateRunning {
		return false
	}
	for _, status := range r.Dependencies {
		if status != "ok" {
			return false
		}
	}
	return true
}

// Service tracks the process lifecycle. Build one with [NewBuilder].
type Service struct {
	name    string
	version string

	mu        sync.RWMutex
	state     State
	startedAt *time.Time

	tracer trace.Tracer
	logger *slog.Logger
	now    func() time.Time

	onStart       Hook
	onStop        Hook
	checks        map[string]Check
	stateHandlers []StateChangeHandler
}

func (s *Service) Name() string    { return s.name }
func (s *Service) Version() string { return s.version }

// State returns the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Health returns nil in [StateRunning] and a [sserr.CodeUnavailable] error
// otherwise. It does not check dependencies; see Report.
func (s *Service) Health(context.Context) error {
	if state := s.State(); state != StateRunning {
		return sserr.Newf(sserr.CodeUnavailable,
			"lifecycle: service is not running, current state is %q", state)
	}
	return nil
}

// Report snapshots the state and runs every registered check concurrently.
// Dependencies maps each check name to "ok" or the failure's message.
func (s *Service) Report(ctx context.Context) Report {
	s.mu.RLock()
	r := Report{Name: s.name, Version: s.version, State: s.state}
	if s.startedAt != nil && s.state == StateRunning {
		t := *s.startedAt
		r.StartedAt = &t
		r.Uptime = s.now().Sub(t)
	}
	s.mu.RUnlock()

	if len(s.checks) == 0 {
		return r
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCheckTimeout)
		defer cancel()
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	r.Dependencies = make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			status := "ok"
			if err := check(ctx); err != nil {
				status = checkMessage(err)
			}
			mu.Lock()
			r.Dependencies[name] = status
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return r
}

// CheckNames lists registered checks in name order.
func (s *Service) CheckNames() []string {
	names := make([]string, 0, len(s.checks))
	for n := range s.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func checkMessage(err error) string {
	if e, ok := sserr.AsError(err); ok {
		return string(e.Code) + ": " + e.Message
	}
	return "unavailable"
}

// SetState moves to next if the transition is valid, otherwise it returns
// a [sserr.CodeConflict] error.
func (s *Service) SetState(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.state
	if !ValidTransition(old, next) {
		return sserr.Newf(sserr.CodeConflict,
			"lifecycle: invalid state transition from %q to %q", old, next)
	}
	s.state = next

	for _, h := range s.stateHandlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("lifecycle: state change handler panicked",
						"panic", r,
						"old_state", string(old),
						"new_state", string(next),
					)
				}
			}()
			h(old, next)
		}()
	}
	return nil
}

// Start moves through Starting to Running, running the OnStart hook in
// between. A cancelled ctx returns before any transition.
func (s *Service) Start(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Start")
	defer func() { finishSpan(span, err) }()

	if err := ctx.Err(); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: start canceled before execution")
	}
	if err := s.SetState(StateStarting); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: starting", "service", s.name, "version", s.version)

	if s.onStart != nil {
		if err := s.onStart(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: start hook failed", "error", err)
			_ = s.SetState(StateFailed)
			return sserr.Wrap(err, sserr.CodeInternal, "lifecycle: start hook failed")
		}
	}

	if err := s.SetState(StateRunning); err != nil {
		return err
	}
	now := s.now().UTC()
	s.mu.Lock()
	s.startedAt = &now
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: running", "service", s.name)
	return nil
}

// Stop moves through Stopping to Stopped, running the OnStop hook in
// between. Stopping a Stopped or Failed service is a no-op.
func (s *Service) Stop(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "lifecycle.Stop")
	defer func() { finishSpan(span, err) }()

	if s.State().IsTerminal() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return sserr.Wrap(err, sserr.CodeTimeout, "lifecycle: stop canceled before execution")
	}
	if err := s.SetState(StateStopping); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "lifecycle: stopping", "service", s.name)

	if s.onStop != nil {
		if err := s.onStop(ctx); err != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stop hook failed", "error", err)
			_ = s.SetState(StateFailed)
			return sserr.Wrap(err, sserr.CodeInternal, "lifecycle: stop hook failed")
		}
	}

	if err := s.SetState(StateStopped); err != nil {
		return err
	}
	s.mu.Lock()
	s.startedAt = nil
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lifecycle: stopped", "service", s.name)
	return nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.name", s.name),
			attribute.String("service.version", s.version),
		),
	)
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
