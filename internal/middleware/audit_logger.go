package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/telemetry"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// Publisher is the minimal interface middlewares need.
type Publisher interface {
	Publish(any)
}

// RequestAuditMW logs every request and publishes a RequestAuditEvent to the
// shipper. It also feeds the HTTP request metrics.
type RequestAuditMW struct {
	Shipper        Publisher
	TrustedHeaders []string
	trusted        []*net.IPNet
}

func NewRequestAuditMW(shipper Publisher, trustedHeaders, trustedCIDRs []string) *RequestAuditMW {
	return &RequestAuditMW{Shipper: shipper, TrustedHeaders: trustedHeaders, trusted: parseCIDRs(trustedCIDRs)}
}

func (m *RequestAuditMW) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		elapsed := time.Since(start)

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		ev := telemetry.RequestAuditEvent{
			Timestamp:  start.UTC(),
			RequestID:  chimw.GetReqID(r.Context()),
			Method:     r.Method,
			Route:      route,
			Path:       r.URL.Path,
			Status:     status,
			DurationMs: elapsed.Milliseconds(),
			ClientIP:   clientIP(r, m.TrustedHeaders, m.trusted).String(),
			UserAgent:  r.UserAgent(),
			Origin:     r.Header.Get("Origin"),
		}
		logger.Infow("request_audit",
			"request_id", ev.RequestID,
			"method", ev.Method,
			"route", ev.Route,
			"status", ev.Status,
			"latency_ms", ev.DurationMs,
		)
		if m.Shipper != nil {
			m.Shipper.Publish(ev)
		}
	})
}

// routePattern is the matched chi pattern, or "unmatched" so unknown paths do
// not explode metric cardinality.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
