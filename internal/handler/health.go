package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bluebricks/rba-harness/internal/config"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

var startTime = time.Now()

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      HealthStatus           `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Version     string                 `json:"version,omitempty"`
	Environment string                 `json:"environment"`
	Uptime      string                 `json:"uptime"`
	Checks      map[string]CheckResult `json:"checks,omitempty"`
	Summary     HealthSummary          `json:"summary"`
}

type HealthSummary struct {
	TotalChecks     int `json:"total_checks"`
	HealthyChecks   int `json:"healthy_checks"`
	DegradedChecks  int `json:"degraded_checks"`
	UnhealthyChecks int `json:"unhealthy_checks"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status    HealthStatus   `json:"status"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	Latency   string         `json:"latency,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HealthChecker checks one dependency.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type HealthHandler struct {
	config   *config.Config
	version  string
	checkers []HealthChecker
	critical map[string]bool
	timeout  time.Duration
}

func NewHealthHandler(cfg *config.Config, version string) *HealthHandler {
	h := &HealthHandler{
		config:   cfg,
		version:  version,
		critical: map[string]bool{},
		timeout:  5 * time.Second,
	}
	h.checkers = append(h.checkers, &ApplicationHealthChecker{config: cfg})
	return h
}

// AddChecker registers c. Critical checkers gate readiness.
func (h *HealthHandler) AddChecker(c HealthChecker, critical bool) {
	h.checkers = append(h.checkers, c)
	if critical {
		h.critical[c.Name()] = true
	}
	logger.Debugf("[Health] registered checker %s (critical=%t)", c.Name(), critical)
}

// ServeHTTP handles /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	response := HealthResponse{
		Timestamp:   time.Now().UTC(),
		Version:     h.version,
		Environment: h.config.Env,
		Uptime:      time.Since(startTime).String(),
		Checks:      make(map[string]CheckResult, len(h.checkers)),
	}

	overall := HealthStatusHealthy
	var summary HealthSummary
	for _, checker := range h.checkers {
		start := time.Now()
		result := checker.Check(ctx)
		result.Latency = time.Since(start).String()
		result.Timestamp = time.Now().UTC()
		response.Checks[checker.Name()] = result
		summary.TotalChecks++

		switch result.Status {
		case HealthStatusHealthy:
			summary.HealthyChecks++
		case HealthStatusDegraded:
			summary.DegradedChecks++
			if overall != HealthStatusUnhealthy {
				overall = HealthStatusDegraded
			}
		case HealthStatusUnhealthy:
			summary.UnhealthyChecks++
			overall = HealthStatusUnhealthy
		}
	}
	response.Status = overall
	response.Summary = summary

	status := http.StatusOK
	switch overall {
	case HealthStatusUnhealthy:
		status = http.StatusServiceUnavailable
	case HealthStatusDegraded:
		status = http.StatusPartialContent
	}

	logger.Infof("[Health] status=%s checks=%d", overall, summary.TotalChecks)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, status, response)
}

// ReadinessHandler handles /ready. Only critical checkers are consulted.
func (h *HealthHandler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	for _, checker := range h.checkers {
		if !h.critical[checker.Name()] {
			continue
		}
		if result := checker.Check(ctx); result.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready - %s: %s\n", checker.Name(), result.Error)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ready")
}

// LivenessHandler handles /live
func (h *HealthHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "live - uptime: %s\n", time.Since(startTime))
}

// PingChecker reports unhealthy when ping fails. It covers Redis,
// Elasticsearch and Postgres, which all expose a context-aware ping.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
	meta map[string]any
}

func NewPingChecker(name string, ping func(ctx context.Context) error, meta map[string]any) *PingChecker {
	return &PingChecker{name: name, ping: ping, meta: meta}
}

func (p *PingChecker) Name() string { return p.name }

func (p *PingChecker) Check(ctx context.Context) CheckResult {
	if err := p.ping(ctx); err != nil {
		logger.Errorf("[Health] %s ping: %v", p.name, err)
		return CheckResult{
			Status:   HealthStatusUnhealthy,
			Error:    fmt.Sprintf("Ping failed: %v", err),
			Metadata: p.meta,
		}
	}
	return CheckResult{
		Status:   HealthStatusHealthy,
		Message:  p.name + " reachable",
		Metadata: p.meta,
	}
}

// ApplicationHealthChecker checks the harness configuration and the device store.
type ApplicationHealthChecker struct {
	config *config.Config
}

func (a *ApplicationHealthChecker) Name() string { return "application" }

func (a *ApplicationHealthChecker) Check(context.Context) CheckResult {
	metadata := map[string]any{
		"environment":  a.config.Env,
		"port":         a.config.Port,
		"mock_mode":    a.config.MockMode,
		"device_store": a.config.DeviceStore.Path,
	}

	if !a.config.MockMode && a.config.Upstream.BaseURL == "" {
		return CheckResult{
			Status:   HealthStatusDegraded,
			Message:  "Upstream base URL not configured and mock mode is off",
			Metadata: metadata,
		}
	}

	raw, err := os.ReadFile(a.config.DeviceStore.Path)
	switch {
	case err != nil:
		metadata["device_store_error"] = err.Error()
		return CheckResult{
			Status:   HealthStatusDegraded,
			Message:  "Device store not readable",
			Metadata: metadata,
		}
	case !json.Valid(raw):
		return CheckResult{
			Status:   HealthStatusDegraded,
			Message:  "Device store is not valid JSON",
			Metadata: metadata,
		}
	}

	return CheckResult{
		Status:   HealthStatusHealthy,
		Message:  "Application configuration is valid",
		Metadata: metadata,
	}
}
