package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/resilience"
)

// DefaultTimeout bounds a single asynchronous dispatch.
const DefaultTimeout = 30 * time.Second

type fanoutEntry struct {
	name    string
	alerter Alerter
	breaker *resilience.CircuitBreaker
}

// Fanout delivers each event to every registered alerter concurrently. Each
// alerter has its own circuit breaker so a dead webhook stops costing time
// after a few failures while the others keep working.
//
// Fanout is safe for concurrent use once all alerters have been added.
type Fanout struct {
	entries []fanoutEntry
	cbCfg   resilience.CircuitBreakerConfig
	metrics *observe.Metrics
	timeout time.Duration

	wg sync.WaitGroup
}

var _ Alerter = (*Fanout)(nil)

// FanoutOption configures a [Fanout].
type FanoutOption func(*Fanout)

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) FanoutOption {
	return func(f *Fanout) { f.metrics = m }
}

// WithBreaker sets the template for per-alerter circuit breakers. The Name
// field is overwritten.
func WithBreaker(cfg resilience.CircuitBreakerConfig) FanoutOption {
	return func(f *Fanout) { f.cbCfg = cfg }
}

// WithTimeout bounds each asynchronous dispatch. Default [DefaultTimeout].
func WithTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// NewFanout returns an empty [Fanout].
func NewFanout(opts ...FanoutOption) *Fanout {
	f := &Fanout{
		cbCfg:   resilience.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Minute, HalfOpenMax: 1},
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(f)
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	return f
}

// Add registers a under name. It must not be called concurrently with
// [Fanout.Alert] or [Fanout.Dispatch].
func (f *Fanout) Add(name string, a Alerter) {
	cfg := f.cbCfg
	cfg.Name = "alert/" + name
	f.entries = append(f.entries, fanoutEntry{
		name:    name,
		alerter: a,
		breaker: resilience.NewCircuitBreaker(cfg),
	})
}

// Names returns the registered alerter names in order.
func (f *Fanout) Names() []string {
	names := make([]string, len(f.entries))
	for i, e := range f.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered alerters.
func (f *Fanout) Len() int { return len(f.entries) }

// Alert implements [Alerter]. It blocks until every alerter has returned and
// joins their errors.
func (f *Fanout) Alert(ctx context.Context, ev Event) error {
	if len(f.entries) == 0 {
		return nil
	}
	ctx, span := observe.StartEpisodeSpan(ctx, observe.SpanAlertFanout, ev.Channel, ev.EpisodeID,
		attribute.Int("vigil.alerters", len(f.entries)))

	errs := make([]error, len(f.entries))
	var wg sync.WaitGroup
	for i := range f.entries {
		e := &f.entries[i]
		wg.Go(func() {
			errs[i] = f.deliver(ctx, e, ev)
		})
	}
	wg.Wait()

	err := errors.Join(errs...)
	observe.EndSpan(span, err, "alert delivery failed")
	return err
}

func (f *Fanout) deliver(ctx context.Context, e *fanoutEntry, ev Event) error {
	ctx, span := observe.StartEpisodeSpan(ctx, observe.AlertSpan(e.name), ev.Channel, ev.EpisodeID,
		observe.KeyAlerter.String(e.name))

	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		return e.alerter.Alert(ctx, ev)
	})

	status := "ok"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "skipped"
	case err != nil:
		status = "error"
	}
	f.metrics.RecordAlert(ctx, e.name, status)
	observe.EndSpan(span, err, status)

	if err != nil {
		return fmt.Errorf("alert %s: %w", e.name, err)
	}
	return nil
}

// Dispatch sends ev in the background, detached from ctx's cancellation but
// keeping its values, and logs any failure. Use [Fanout.Wait] to drain
// in-flight dispatches on shutdown.
func (f *Fanout) Dispatch(ctx context.Context, ev Event) {
	if len(f.entries) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	f.wg.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		if err := f.Alert(ctx, ev); err != nil {
			slog.Warn("alert: delivery failed", "channel", ev.Channel, "episode_id", ev.EpisodeID.String(), "err", err)
		}
	})
}

// Wait blocks until all dispatches started by [Fanout.Dispatch] have finished
// or ctx is done.
func (f *Fanout) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
