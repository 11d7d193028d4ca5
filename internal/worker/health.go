package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/aescanero/dago-node-proposal/internal/blocks"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const checkTimeout = 2 * time.Second

// Check reports the state of one dependency. An error marks the service
// unhealthy.
type Check func(ctx context.Context) (string, error)

// Pinger checks the Redis connection
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisCheck pings Redis
func RedisCheck(p Pinger) Check {
	return func(ctx context.Context) (string, error) {
		if err := p.Ping(ctx).Err(); err != nil {
			return "", err
		}
		return "healthy", nil
	}
}

// CatalogCheck reports the loaded block catalog
func CatalogCheck(c *blocks.Catalog) Check {
	return func(ctx context.Context) (string, error) {
		return fmt.Sprintf("%d types, %s", len(c.Types()), c.Fingerprint()), nil
	}
}

// WorkerCheck reports the render counters of w. It fails once the work loop
// has exited.
func WorkerCheck(w *Worker) Check {
	return func(ctx context.Context) (string, error) {
		if !w.Running() {
			return "", fmt.Errorf("work loop not running")
		}
		st := w.Stats()
		return fmt.Sprintf("rendered=%d cache_hits=%d partial=%d failed=%d",
			st.Rendered, st.CacheHits, st.Partial, st.Failed), nil
	}
}

// HealthServer serves /health with every registered check and /ready for
// orchestrator probes
type HealthServer struct {
	port   int
	logger *zap.Logger
	server *http.Server

	mu     sync.RWMutex
	checks map[string]Check
}

// NewHealthServer creates a health server with no checks
func NewHealthServer(port int, logger *zap.Logger) *HealthServer {
	return &HealthServer{
		port:   port,
		logger: logger,
		checks: make(map[string]Check),
	}
}

// AddCheck registers check under name, replacing any previous one
func (hs *HealthServer) AddCheck(name string, check Check) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.checks[name] = check
}

// Start starts the health check server
func (hs *HealthServer) Start() error {
	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		Handler:           hs.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	hs.logger.Info("starting health server", zap.Int("port", hs.port))

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("health server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the health check server
func (hs *HealthServer) Stop() error {
	if hs.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hs.logger.Info("stopping health server")
	return hs.server.Shutdown(ctx)
}

func (hs *HealthServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/ready", hs.handleReady)
	return mux
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// runChecks runs the checks in name order and reports whether all passed
func (hs *HealthServer) runChecks(ctx context.Context) (map[string]string, bool) {
	hs.mu.RLock()
	names := make([]string, 0, len(hs.checks))
	for name := range hs.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(hs.checks))
	for name, c := range hs.checks {
		checks[name] = c
	}
	hs.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	ok := true
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		detail, err := checks[name](cctx)
		cancel()
		if err != nil {
			ok = false
			results[name] = fmt.Sprintf("unhealthy: %v", err)
			continue
		}
		results[name] = detail
	}
	return results, ok
}

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	results, ok := hs.runChecks(r.Context())
	if !ok {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: results})
		return
	}
	hs.respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Checks: results})
}

// handleReady only reports the verdict; details stay on /health
func (hs *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, ok := hs.runChecks(r.Context()); !ok {
		hs.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "not ready"})
		return
	}
	hs.respondJSON(w, http.StatusOK, HealthResponse{Status: "ready"})
}

func (hs *HealthServer) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode response", zap.Error(err))
	}
}
