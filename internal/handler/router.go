package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/middleware"
)

// RouterDeps carries the handlers and optional middleware of the HTTP surface.
// Nil optional fields switch the matching feature off.
type RouterDeps struct {
	Relay   *RelayHandler
	Devices *DeviceHandler
	Batch   *BatchHandler
	Health  *HealthHandler
	Archive ArchiveReader

	AllowedOrigins []string
	Security       middleware.SecurityConfig
	Audit          *middleware.RequestAuditMW
	RateLimiter    *middleware.RateLimiter
	RequestTimeout time.Duration
	AccessLog      bool
	Debug          bool
}

// NewRouter mounts every endpoint. Batch dispatch is exempt from the request
// timeout since interval and random strategies can run for minutes.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	if d.AccessLog {
		r.Use(chimw.Logger)
	}
	r.Use(middleware.SecurityHeaders(d.Security))
	r.Use(middleware.CORS(d.AllowedOrigins))
	if d.Audit != nil {
		r.Use(d.Audit.Handler)
	}

	if d.Health != nil {
		r.Handle("/health", d.Health)
		r.HandleFunc("/ready", d.Health.ReadinessHandler)
		r.HandleFunc("/live", d.Health.LivenessHandler)
	}
	r.Handle("/metrics", metrics.Handler())

	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Route("/api", func(api chi.Router) {
		if d.RateLimiter != nil {
			api.Use(d.RateLimiter.Handler)
		}

		api.Group(func(g chi.Router) {
			g.Use(chimw.Timeout(timeout))
			g.Post("/send-request", d.Relay.SendRequest)
			g.Get("/logs", d.Relay.Logs)
			g.Post("/clear-logs", d.Relay.ClearLogs)
			g.Get("/device-details", d.Devices.Details)
			g.Post("/add-device-profiles", d.Devices.AddProfiles)
			g.Post("/analyze", Analyze)
			if d.Archive != nil {
				g.Get("/archive", RecentArchive(d.Archive))
			}
			if d.Debug && d.RateLimiter != nil {
				g.Get("/debug/rate-limit", d.RateLimiter.StatsHandler)
			}
		})

		if d.Batch != nil {
			api.Post("/dispatch-batch", d.Batch.Dispatch)
		}
	})
	return r
}
