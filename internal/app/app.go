// Package app wires all vigil subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the scheduler and the HTTP server, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithCamera,
// WithMicrophone, WithJournal, WithAlerter). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vigil/internal/alert"
	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/internal/health"
	"github.com/MrWong99/vigil/internal/journal"
	"github.com/MrWong99/vigil/internal/live"
	"github.com/MrWong99/vigil/internal/monitor"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/recorder"
	"github.com/MrWong99/vigil/internal/web"
	"github.com/MrWong99/vigil/pkg/capture"
)

// serverStopTimeout bounds the HTTP server drain once Run's context ends.
const serverStopTimeout = 5 * time.Second

// namedAlerter is an alerter injected with [WithAlerter].
type namedAlerter struct {
	name string
	a    alert.Alerter
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	registry *config.Registry
	camera   capture.Camera
	mic      capture.Microphone
	journal  journal.Store
	extra    []namedAlerter
	fanout   *alert.Fanout
	hub      *live.Hub
	rec      *recorder.Recorder
	mon      *monitor.Monitor
	web      *web.Server
	server   *http.Server
	metrics  *observe.Metrics

	addrMu sync.Mutex
	addr   net.Addr

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCamera injects a camera instead of creating one from config.
func WithCamera(c capture.Camera) Option {
	return func(a *App) { a.camera = c }
}

// WithMicrophone injects a microphone instead of creating one from config.
func WithMicrophone(m capture.Microphone) Option {
	return func(a *App) { a.mic = m }
}

// WithJournal injects an episode store instead of connecting to PostgreSQL
// or creating an in-memory ring.
func WithJournal(s journal.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithAlerter adds an alerter to the fan-out next to the configured ones.
func WithAlerter(name string, al alert.Alerter) Option {
	return func(a *App) { a.extra = append(a.extra, namedAlerter{name: name, a: al}) }
}

// WithRegistry replaces the device registry. Default [config.NewDefaultRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics sets the metrics sink. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any device or store.
//
// New performs all initialisation synchronously: device construction,
// journal connection and migration, alerter setup, and scheduler and HTTP
// surface assembly. Devices are not started until the scheduler needs them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = config.NewDefaultRegistry()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Devices ───────────────────────────────────────────────────────
	if err := a.initDevices(); err != nil {
		return nil, fmt.Errorf("app: init devices: %w", err)
	}

	// ── 2. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 3. Live hub ──────────────────────────────────────────────────────
	a.hub = live.NewHub()
	a.closers = append(a.closers, a.hub.Close)

	// ── 4. Alerts ────────────────────────────────────────────────────────
	if err := a.initAlerts(); err != nil {
		return nil, fmt.Errorf("app: init alerts: %w", err)
	}

	// ── 5. Recorder + scheduler ──────────────────────────────────────────
	a.rec = recorder.New(recorder.Layout{Root: cfg.Storage.Root})
	a.initMonitor()

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.initWeb()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initDevices creates both devices from the registry. A disabled channel
// still gets its device so it can be enabled at runtime; the monitor only
// starts a device while its channel is enabled.
func (a *App) initDevices() error {
	if a.camera == nil {
		cam, err := a.registry.CreateCamera(a.cfg.Video.Camera)
		if err != nil {
			return fmt.Errorf("camera %q: %w", a.cfg.Video.Camera.Kind, err)
		}
		a.camera = cam
		slog.Info("camera created", "kind", a.cfg.Video.Camera.Kind)
	}
	if a.mic == nil {
		mic, err := a.registry.CreateMicrophone(a.cfg.Audio.Microphone)
		if err != nil {
			return fmt.Errorf("microphone %q: %w", a.cfg.Audio.Microphone.Kind, err)
		}
		a.mic = mic
		slog.Info("microphone created", "kind", a.cfg.Audio.Microphone.Kind)
	}
	return nil
}

// initJournal connects to PostgreSQL when a DSN is configured and falls back
// to an in-memory ring otherwise.
func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	dsn := a.cfg.Journal.PostgresDSN
	if dsn == "" {
		a.journal = journal.NewMemory(max(a.cfg.Journal.RecentLimit, journal.DefaultMemoryCapacity))
		slog.Info("journal: using in-memory store")
		return nil
	}

	store, err := journal.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	a.journal = store
	a.closers = append(a.closers, func(context.Context) error {
		store.Shutdown()
		return nil
	})
	slog.Info("journal: connected to postgres")
	return nil
}

// initAlerts builds the fan-out from config plus injected alerters.
func (a *App) initAlerts() error {
	a.fanout = alert.NewFanout(alert.WithMetrics(a.metrics))

	if a.cfg.Alert.Log {
		a.fanout.Add("log", alert.NewLog(slog.Default()))
	}
	if a.cfg.Alert.DiscordWebhook != "" {
		id, token, err := a.cfg.Alert.DiscordWebhookCredentials()
		if err != nil {
			return err
		}
		d, err := alert.NewDiscord(id, token)
		if err != nil {
			return fmt.Errorf("discord: %w", err)
		}
		a.fanout.Add("discord", d)
	}
	if path := a.cfg.Alert.ChimePath; path != "" {
		c, err := alert.NewChime(path, a.hub)
		if err != nil {
			return err
		}
		a.fanout.Add("chime", c)
	}
	for _, na := range a.extra {
		a.fanout.Add(na.name, na.a)
	}

	a.closers = append(a.closers, a.fanout.Wait)
	slog.Info("alerts configured", "alerters", a.fanout.Names())
	return nil
}

func (a *App) initMonitor() {
	opts := []monitor.Option{
		monitor.WithSpeaker(a.hub),
		monitor.WithRecorder(a.rec),
		monitor.WithJournal(a.journal),
		monitor.WithPublisher(a.hub),
		monitor.WithMetrics(a.metrics),
	}
	if a.camera != nil {
		opts = append(opts, monitor.WithCamera(a.camera))
	}
	if a.mic != nil {
		opts = append(opts, monitor.WithMicrophone(a.mic))
	}
	if a.fanout.Len() > 0 {
		opts = append(opts, monitor.WithDispatcher(a.fanout))
	}
	a.mon = monitor.New(monitor.ConfigFrom(a.cfg), opts...)
}

func (a *App) initWeb() {
	hh := health.New(
		health.Checker{Name: "journal", Check: a.journal.Ping},
		health.Checker{Name: "camera", Check: a.checkCamera},
		health.Checker{Name: "microphone", Check: a.checkMicrophone},
	)
	a.web = web.New(a.mon,
		web.WithJournal(a.journal),
		web.WithLayout(a.rec.Layout()),
		web.WithLive(a.hub),
		web.WithHealth(hh),
		web.WithMetrics(a.metrics),
		web.WithRecentLimit(a.cfg.Journal.RecentLimit),
	)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.web.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// checkCamera fails while the video channel is enabled but its camera has
// not started.
func (a *App) checkCamera(context.Context) error {
	st := a.mon.Snapshot()
	if st.Video.Enabled && !st.Camera {
		return errors.New("camera not started")
	}
	return nil
}

// checkMicrophone fails while the audio channel is enabled but its
// microphone is not delivering.
func (a *App) checkMicrophone(context.Context) error {
	st := a.mon.Snapshot()
	if st.Audio.Enabled && !st.Microphone {
		return errors.New("microphone not running")
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Monitor returns the scheduler.
func (a *App) Monitor() *monitor.Monitor { return a.mon }

// Handler returns the HTTP route tree served by Run.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Addr returns the address the HTTP server listens on, or nil before Run
// has bound it.
func (a *App) Addr() net.Addr {
	a.addrMu.Lock()
	defer a.addrMu.Unlock()
	return a.addr
}

// Reload applies the hot-reloadable part of a configuration change and
// returns the diff so the caller can handle the log level.
func (a *App) Reload(old, new *config.Config) config.ConfigDiff {
	d := config.Diff(old, new)
	if d.Empty() {
		return d
	}
	if s := monitor.SettingsFromDiff(d); !s.Empty() {
		a.mon.Apply(s)
	}
	if d.RestartRequired {
		slog.Warn("config changed in fields that need a restart; keeping current values")
	}
	return d
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the scheduler and the HTTP server and blocks until ctx is
// cancelled or either fails. A clean cancellation returns nil.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
	}
	a.addrMu.Lock()
	a.addr = ln.Addr()
	a.addrMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.mon.Run(gctx)
	})

	g.Go(func() error {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), serverStopTimeout)
		defer cancel()
		// Websocket connections are hijacked and invisible to Shutdown.
		if err := a.hub.Close(stopCtx); err != nil {
			slog.Warn("live hub close error", "err", err)
		}
		return a.server.Shutdown(stopCtx)
	})

	slog.Info("app running", "addr", ln.Addr().String(), "alerters", a.fanout.Len())
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
