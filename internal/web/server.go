// Package web exposes the daemon over HTTP: monitor status and settings, the
// episode journal, the evidence clip index, health probes, Prometheus metrics
// and the live websocket feed.
//
// Routes:
//
//	GET /healthz        liveness
//	GET /readyz         readiness (journal, devices)
//	GET /metrics        Prometheus exposition
//	GET /api/status     monitor snapshot
//	PUT /api/settings   partial toggle update
//	GET /api/episodes   recent alarm episodes, newest first
//	GET /api/clips      recorded WAVE and JPEG evidence
//	GET /ws/live        websocket feed
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/vigil/internal/config"
	"github.com/MrWong99/vigil/internal/health"
	"github.com/MrWong99/vigil/internal/journal"
	"github.com/MrWong99/vigil/internal/monitor"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/recorder"
)

// maxSettingsBody bounds PUT /api/settings request bodies.
const maxSettingsBody = 4 << 10

// Monitor is the part of [*monitor.Monitor] the server needs.
type Monitor interface {
	Snapshot() monitor.Status
	Apply(monitor.Settings)
}

// Option configures a [Server].
type Option func(*Server)

// WithJournal sets the episode store behind /api/episodes. Default: an empty
// in-memory journal.
func WithJournal(s journal.Store) Option { return func(srv *Server) { srv.journal = s } }

// WithLayout sets the evidence root scanned by /api/clips.
func WithLayout(l recorder.Layout) Option { return func(srv *Server) { srv.layout = l } }

// WithLive mounts h at /ws/live.
func WithLive(h http.Handler) Option { return func(srv *Server) { srv.live = h } }

// WithHealth sets the probe handler. Default: no readiness checkers.
func WithHealth(h *health.Handler) Option { return func(srv *Server) { srv.health = h } }

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option { return func(srv *Server) { srv.metrics = m } }

// WithMetricsHandler overrides the /metrics handler. Default: promhttp.Handler.
func WithMetricsHandler(h http.Handler) Option { return func(srv *Server) { srv.promHandler = h } }

// WithRecentLimit caps the number of episodes returned. Default
// [config.DefaultRecentLimit].
func WithRecentLimit(n int) Option {
	return func(srv *Server) {
		if n > 0 {
			srv.recentLimit = n
		}
	}
}

// Server routes HTTP requests to the monitor and its stores.
type Server struct {
	mon         Monitor
	journal     journal.Store
	layout      recorder.Layout
	live        http.Handler
	health      *health.Handler
	metrics     *observe.Metrics
	promHandler http.Handler
	recentLimit int
}

// New returns a server for mon.
func New(mon Monitor, opts ...Option) *Server {
	s := &Server{
		mon:         mon,
		layout:      recorder.Layout{Root: config.DefaultStorageRoot},
		recentLimit: config.DefaultRecentLimit,
	}
	for _, o := range opts {
		o(s)
	}
	if s.journal == nil {
		s.journal = journal.NewMemory(0)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.promHandler == nil {
		s.promHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the instrumented route tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", s.promHandler)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("PUT /api/settings", s.handleSettings)
	mux.HandleFunc("GET /api/episodes", s.handleEpisodes)
	mux.HandleFunc("GET /api/clips", s.handleClips)
	if s.live != nil {
		mux.Handle("GET /ws/live", s.live)
	}
	return observe.Middleware(s.metrics)(mux)
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mon.Snapshot())
}

// handleSettings handles PUT /api/settings. The change is queued on the
// monitor; the response echoes what was accepted.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	dec.DisallowUnknownFields()

	var req monitor.Settings
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}
	if req.Empty() {
		writeError(w, http.StatusBadRequest, "no settings given")
		return
	}

	s.mon.Apply(req)
	observe.Logger(r.Context()).Info("web: settings accepted", "settings", settingsAttrs(req))
	writeJSON(w, http.StatusAccepted, req)
}

// handleEpisodes handles GET /api/episodes?limit=N.
func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	limit := s.recentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, s.recentLimit)
	}

	eps, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("web: list episodes", "err", err)
		writeError(w, http.StatusServiceUnavailable, "journal unavailable")
		return
	}
	if eps == nil {
		eps = []journal.Episode{}
	}
	writeJSON(w, http.StatusOK, eps)
}

// handleClips handles GET /api/clips?kind=sound|image.
func (s *Server) handleClips(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", KindSound, KindImage:
	default:
		writeError(w, http.StatusBadRequest, "kind must be sound or image")
		return
	}

	var recording string
	if st := s.mon.Snapshot(); st.Recording {
		recording = st.SoundPath
	}
	clips, err := ListClips(s.layout, kind, recording)
	if err != nil {
		observe.Logger(r.Context()).Error("web: list clips", "err", err)
		writeError(w, http.StatusInternalServerError, "cannot list clips")
		return
	}
	writeJSON(w, http.StatusOK, clips)
}

func settingsAttrs(st monitor.Settings) slog.Value {
	var attrs []slog.Attr
	add := func(key string, v *bool) {
		if v != nil {
			attrs = append(attrs, slog.Bool(key, *v))
		}
	}
	add("video_enabled", st.VideoEnabled)
	add("audio_enabled", st.AudioEnabled)
	add("video_alert", st.VideoAlert)
	add("audio_alert", st.AudioAlert)
	add("echo", st.Echo)
	return slog.GroupValue(attrs...)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
