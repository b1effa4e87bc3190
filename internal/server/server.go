// Package server serves a built atlas and its diagnostics over HTTP.
//
// Every request for the atlas goes through the pipeline runner, so an
// unchanged set of sources is answered from the cache and an edited source
// triggers a rebuild. Concurrent requests share one build.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/atlaspack/pkg/atlas"
	"github.com/matzehuels/atlaspack/pkg/buildinfo"
	"github.com/matzehuels/atlaspack/pkg/cache"
	"github.com/matzehuels/atlaspack/pkg/observability"
	"github.com/matzehuels/atlaspack/pkg/pipeline"
	"github.com/matzehuels/atlaspack/pkg/source"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// server is asked to stop.
const shutdownTimeout = 5 * time.Second

// Server serves one atlas.
type Server struct {
	runner *pipeline.Runner
	loader source.Loader
	opts   pipeline.Options
	logger *log.Logger

	group singleflight.Group

	mu   sync.RWMutex
	last *pipeline.Result
}

// New creates a server that builds opts from loader through runner.
func New(runner *pipeline.Runner, opts pipeline.Options, loader source.Loader, logger *log.Logger) *Server {
	if logger == nil {
		logger = runner.Logger
	}
	return &Server{
		runner: runner,
		loader: loader,
		opts:   opts,
		logger: logger,
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/atlas.png", s.atlasPNG)
	r.Get("/diagnostics", s.diagnostics)
	r.Get("/layout", s.layout)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// build runs the pipeline, sharing the result between concurrent callers.
func (s *Server) build(ctx context.Context, refresh bool) (*pipeline.Result, error) {
	key := "build"
	if refresh {
		key = "refresh"
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		opts := s.opts
		opts.Refresh = refresh
		opts.Logger = s.logger
		return s.runner.Execute(context.WithoutCancel(ctx), opts, s.loader)
	})
	if err != nil {
		return nil, err
	}
	res := v.(*pipeline.Result)

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	return res, nil
}

// lastOrBuild returns the most recent result, building one if none exists.
func (s *Server) lastOrBuild(ctx context.Context) (*pipeline.Result, error) {
	s.mu.RLock()
	res := s.last
	s.mu.RUnlock()
	if res != nil {
		return res, nil
	}
	return s.build(ctx, false)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": buildinfo.Version})
}

func (s *Server) atlasPNG(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	res, err := s.build(r.Context(), refresh)
	if err != nil {
		s.logger.Error("build failed", "err", err)
		http.Error(w, "build failed", http.StatusInternalServerError)
		return
	}

	etag := `"` + cache.Hash(res.PNG)[:16] + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Atlas-Run", res.RunID)
	w.Header().Set("X-Atlas-Failed-Slots", strconv.Itoa(res.Stats.Failed))
	if res.CacheInfo.Hit {
		w.Header().Set("X-Atlas-Cache", "hit")
	} else {
		w.Header().Set("X-Atlas-Cache", "miss")
	}
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PNG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.PNG)
}

// diagnosticsResponse is the body of GET /diagnostics.
type diagnosticsResponse struct {
	RunID       string             `json:"run_id"`
	Slots       int                `json:"slots"`
	Composited  int                `json:"composited"`
	Cached      bool               `json:"cached"`
	Diagnostics []atlas.Diagnostic `json:"diagnostics"`
}

func (s *Server) diagnostics(w http.ResponseWriter, r *http.Request) {
	res, err := s.lastOrBuild(r.Context())
	if err != nil {
		s.logger.Error("build failed", "err", err)
		http.Error(w, "build failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{
		RunID:       res.RunID,
		Slots:       res.Stats.Slots,
		Composited:  res.Stats.Composited,
		Cached:      res.CacheInfo.Hit,
		Diagnostics: res.Diagnostics(),
	})
}

// slotResponse is one element of GET /layout.
type slotResponse struct {
	Index  int        `json:"index"`
	X      int        `json:"x"`
	Y      int        `json:"y"`
	Size   int        `json:"size"`
	UV     [4]float64 `json:"uv"`
	Source string     `json:"source"`
	Label  string     `json:"label,omitempty"`
}

func (s *Server) layout(w http.ResponseWriter, r *http.Request) {
	opts := s.opts
	grid, err := opts.ValidateAndSetDefaults()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slots := make([]slotResponse, 0, grid.SlotCount())
	for _, sl := range grid.Slots() {
		slots = append(slots, slotResponse{
			Index:  sl.Index,
			X:      sl.Origin.X,
			Y:      sl.Origin.Y,
			Size:   sl.Size,
			UV:     grid.UV(sl.Index),
			Source: opts.Sources[sl.Index],
			Label:  opts.Label(sl.Index),
		})
	}
	writeJSON(w, http.StatusOK, slots)
}

// observe reports every request to the HTTP hooks and the debug log.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		hooks := observability.HTTP()
		hooks.OnRequest(r.Context(), r.Method, r.URL.Path)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		hooks.OnResponse(r.Context(), r.Method, r.URL.Path, status, time.Since(start))
		s.logger.Debug("request",
			"id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
