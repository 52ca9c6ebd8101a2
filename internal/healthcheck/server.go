// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package healthcheck serves liveness and readiness probes on a side port.
// Readiness is derived from named dependency checks polled in the background.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Pinger is anything whose reachability gates readiness, such as a store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Response struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type Config struct {
	Port          int
	CheckInterval time.Duration
	CheckTimeout  time.Duration
}

const (
	defaultPort          = 8090
	defaultCheckInterval = 10 * time.Second
	defaultCheckTimeout  = 2 * time.Second
)

func GetConfigFromEnv() Config {
	cfg := Config{Port: defaultPort, CheckInterval: defaultCheckInterval, CheckTimeout: defaultCheckTimeout}
	if portStr := os.Getenv("HEALTH_CHECK_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil && p > 0 && p < 65536 {
			cfg.Port = p
		}
	}
	if s := os.Getenv("HEALTH_CHECK_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.CheckInterval = d
		}
	}
	return cfg
}

type check struct {
	pinger Pinger
	mu     sync.Mutex
	err    error
	ran    bool
}

type Server struct {
	cfg    Config
	status atomic.Int32

	mu     sync.RWMutex
	checks map[string]*check

	server *http.Server
}

func NewServer(cfg Config) *Server {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	return &Server{cfg: cfg, checks: make(map[string]*check)}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

// AddCheck registers a dependency. Until its first ping completes the
// dependency counts as not ready.
func (s *Server) AddCheck(name string, p Pinger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = &check{pinger: p}
}

// RunChecks pings every registered dependency once.
func (s *Server) RunChecks(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, c := range s.checks {
		pingCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
		err := c.pinger.Ping(pingCtx)
		cancel()

		c.mu.Lock()
		changed := !c.ran || (c.err == nil) != (err == nil)
		c.err, c.ran = err, true
		c.mu.Unlock()

		if changed {
			if err != nil {
				slog.Warn("Readiness check failing", slog.String("check", name), slog.Any("error", err))
			} else {
				slog.Info("Readiness check passing", slog.String("check", name))
			}
		}
	}
}

// IsReady reports whether the process is healthy and every check passed
// on its most recent run.
func (s *Server) IsReady() bool {
	ready, _ := s.readiness()
	return ready
}

func (s *Server) readiness() (bool, map[string]string) {
	ready := s.GetStatus() == StatusHealthy
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		c.mu.Lock()
		switch {
		case !c.ran:
			results[name] = "pending"
			ready = false
		case c.err != nil:
			results[name] = c.err.Error()
			ready = false
		default:
			results[name] = "ok"
		}
		c.mu.Unlock()
	}
	return ready, results
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/readyz", s.readyzHandler)
	mux.HandleFunc("/livez", s.livezHandler)
	return mux
}

// Start serves the probes and polls checks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("Starting health check server", slog.Int("port", s.cfg.Port))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.RunChecks(ctx)
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.Stop()
		case err := <-errCh:
			return fmt.Errorf("health check server: %w", err)
		case <-ticker.C:
			s.RunChecks(ctx)
		}
	}
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func writeProbe(w http.ResponseWriter, ok bool, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(Response{Healthy: ok, Checks: checks}); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, s.GetStatus() == StatusHealthy, nil)
}

func (s *Server) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	ready, checks := s.readiness()
	writeProbe(w, ready, checks)
}

func (s *Server) livezHandler(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, s.GetStatus() != StatusUnhealthy, nil)
}
