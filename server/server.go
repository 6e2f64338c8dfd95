// Package server exposes simulation configuration artifacts over HTTP.
// Each repository is served raw at /{name}; /{name}/plan resolves the
// artifact into a full simulation plan.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-http-utils/etag"
	"github.com/sirupsen/logrus"

	"github.com/neurosimlabs/neurodamus/blueconfig"
	"github.com/neurosimlabs/neurodamus/node"
	"github.com/neurosimlabs/neurodamus/sonata"
	"github.com/neurosimlabs/neurodamus/source"
)

// RepositoryStatus is the refresh state of one repository as reported by
// the /status endpoint.
type RepositoryStatus struct {
	Name         string    `json:"name"`
	IsHealthy    bool      `json:"healthy"`
	RefreshCount int       `json:"refresh_count"`
	LastRefresh  time.Time `json:"last_refresh"`
	LastError    string    `json:"last_error,omitempty"`
}

type repoState struct {
	mu           sync.RWMutex
	refreshCount int
	lastRefresh  time.Time
	lastErr      error
}

func (s *repoState) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCount++
	s.lastRefresh = time.Now()
	s.lastErr = err
}

func (s *repoState) status(name string) RepositoryStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := RepositoryStatus{
		Name:         name,
		IsHealthy:    s.lastErr == nil,
		RefreshCount: s.refreshCount,
		LastRefresh:  s.lastRefresh,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	return status
}

type Server struct {
	Repositories    []source.Repository
	RefreshInterval time.Duration
	AuthKey         string

	// Ranks is the partition size used when resolving plans.
	Ranks int

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	httpServer *http.Server
	states     map[string]*repoState
}

// NewServer refreshes every repository once and starts a background
// refresh loop per repository. The refresh interval is clamped to a
// minimum of 5 seconds.
func NewServer(ctx context.Context, repositories []source.Repository, refreshInterval time.Duration) *Server {
	if refreshInterval < 5*time.Second {
		logrus.Warn("refresh interval too low, setting it to 5 seconds")
		refreshInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	server := &Server{
		Repositories:    repositories,
		RefreshInterval: refreshInterval,
		Ranks:           1,
		cancel:          cancel,
		states:          make(map[string]*repoState),
	}
	for _, repo := range server.Repositories {
		state := &repoState{}
		server.states[repo.GetName()] = state
		err := repo.Refresh()
		if err != nil {
			logrus.WithError(err).Error("error refreshing repository")
		}
		state.record(err)
	}
	for _, repo := range server.Repositories {
		server.wg.Add(1)
		go server.refresh(ctx, repo)
	}
	return server
}

func (s *Server) refresh(ctx context.Context, repository source.Repository) {
	defer s.wg.Done()
	state := s.states[repository.GetName()]
	ticker := time.NewTicker(s.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := repository.Refresh()
			if err != nil {
				logrus.WithError(err).Error("error refreshing repository")
			}
			state.record(err)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the refresh loops and waits for them to exit.
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
}

// IsHealthy reports whether the last refresh of every repository succeeded.
func (s *Server) IsHealthy() bool {
	for name, state := range s.states {
		if !state.status(name).IsHealthy {
			return false
		}
	}
	return true
}

// IsReady reports whether at least one repository has refreshed
// successfully, so the server can serve something.
func (s *Server) IsReady() bool {
	for name, state := range s.states {
		if state.status(name).IsHealthy {
			return true
		}
	}
	return false
}

// GetRepositoryStatus returns the refresh state of every repository.
func (s *Server) GetRepositoryStatus() map[string]RepositoryStatus {
	out := make(map[string]RepositoryStatus, len(s.states))
	for name, state := range s.states {
		out[name] = state.status(name)
	}
	return out
}

// Start serves the configured handlers on addr and blocks until the
// server is shut down.
func (s *Server) Start(addr string) error {
	logrus.Info("Starting server")

	handler := etag.Handler(s.CreateHandlers(), false)
	if s.AuthKey != "" {
		handler = Auth(handler, s.AuthKey)
	}

	s.httpServer = &http.Server{Addr: addr, Handler: handler}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP listener started by Start.
func (s *Server) Shutdown() error {
	s.Stop()
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) CreateHandlers() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	for _, repo := range s.Repositories {
		repo := repo
		mux.HandleFunc("/"+repo.GetName(), func(w http.ResponseWriter, r *http.Request) {
			if !allowedMethod(w, r) {
				return
			}
			_, err := w.Write(repo.GetRawData())
			if err != nil {
				logrus.WithError(err).Error("error writing response")
			}
		})
		mux.HandleFunc("/"+repo.GetName()+"/plan", func(w http.ResponseWriter, r *http.Request) {
			if !allowedMethod(w, r) {
				return
			}
			s.handlePlan(w, repo)
		})
	}
	return mux
}

// handlePlan parses the repository artifact as a simulation config and
// resolves it into a plan. SONATA artifacts are detected by their leading
// brace, everything else parses as BlueConfig. The companion files an
// artifact names (network, node_sets_file, spike files) are opened on the
// local filesystem, so remote artifacts must use absolute paths.
func (s *Server) handlePlan(w http.ResponseWriter, repo source.Repository) {
	cfg, err := parseArtifact(repo.GetRawData())
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	n, err := node.New(cfg, s.Ranks)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	plan, err := n.Setup()
	if err != nil {
		logrus.WithError(err).Error("error resolving plan")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(plan); err != nil {
		logrus.WithError(err).Error("error writing response")
	}
}

func parseArtifact(data []byte) (*blueconfig.File, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		cfg, err := sonata.ParseSimConfig(data, "")
		if err != nil {
			return nil, err
		}
		return sonata.Translate(cfg)
	}
	return blueconfig.Parse(bytes.NewReader(data))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowedMethod(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	status := "healthy"
	if !s.IsHealthy() {
		status = "unhealthy"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !allowedMethod(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	if !s.IsReady() {
		status = "not ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowedMethod(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"healthy":      s.IsHealthy(),
		"ready":        s.IsReady(),
		"repositories": s.GetRepositoryStatus(),
	})
}

func allowedMethod(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != "GET" && r.Method != "HEAD" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// Auth rejects requests without the expected X-API-KEY header. The health
// probes stay open so orchestrators can reach them without credentials.
func Auth(next http.Handler, authKey string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/ready", "/status":
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-KEY")
		if key == "" || key != authKey {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
