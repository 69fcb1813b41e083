package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebricks/rba-harness/internal/client"
	"github.com/bluebricks/rba-harness/internal/telemetry"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func doRequest(h http.Handler, method, path, remote string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterMemory(t *testing.T) {
	rl := NewRateLimiter(LimiterConfig{RatePerInterval: 2, Interval: time.Hour, Burst: 2})
	h := rl.Handler(okHandler)

	assert.Equal(t, http.StatusOK, doRequest(h, "GET", "/api/logs", "10.0.0.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "GET", "/api/logs", "10.0.0.1:1234", nil).Code)

	rec := doRequest(h, "GET", "/api/logs", "10.0.0.1:1234", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Too Many Requests"}`, rec.Body.String())

	// other clients have their own bucket
	assert.Equal(t, http.StatusOK, doRequest(h, "GET", "/api/logs", "10.0.0.2:1234", nil).Code)
}

func TestRateLimiterRouteLimits(t *testing.T) {
	rl := NewRateLimiter(LimiterConfig{
		RatePerInterval: 100,
		Interval:        time.Hour,
		RouteLimits: []RouteLimit{
			{PathPrefix: "/api/dispatch-batch", RatePerInterval: 1, Interval: time.Hour, Burst: 1},
		},
	})
	h := rl.Handler(okHandler)

	assert.Equal(t, http.StatusOK, doRequest(h, "POST", "/api/dispatch-batch", "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "POST", "/api/dispatch-batch", "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "POST", "/api/send-request", "10.0.0.1:1", nil).Code)
}

func TestRateLimiterEvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(LimiterConfig{RatePerInterval: 1, Interval: time.Hour, Burst: 1, IdleTTL: 10 * time.Minute})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	rl.now = func() time.Time { return now }
	rl.lastSweep = base
	h := rl.Handler(okHandler)

	assert.Equal(t, http.StatusOK, doRequest(h, "GET", "/api/logs", "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "GET", "/api/logs", "10.0.0.2:1", nil).Code)

	now = base.Add(5 * time.Minute)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "GET", "/api/logs", "10.0.0.1:1", nil).Code)

	now = base.Add(11 * time.Minute)
	assert.Equal(t, http.StatusOK, doRequest(h, "GET", "/api/logs", "10.0.0.3:1", nil).Code)
	assert.Len(t, rl.buckets, 2)
	assert.NotContains(t, rl.buckets, "10.0.0.2|")

	now = base.Add(30 * time.Minute)
	assert.Equal(t, http.StatusOK, doRequest(h, "GET", "/api/logs", "10.0.0.1:1", nil).Code)
	assert.Len(t, rl.buckets, 1)
	assert.Contains(t, rl.buckets, "10.0.0.1|")
}

func TestRateLimiterRedisDegraded(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	rc := client.NewRedisClientFrom(rdb, client.BreakerConfig{})
	t.Cleanup(func() { _ = rc.Close() })

	rl := NewRateLimiter(LimiterConfig{RatePerInterval: 1, Interval: time.Hour, Redis: rc})
	rec := doRequest(rl.Handler(okHandler), "GET", "/", "10.0.0.1:1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-RateLimit-Degraded"))

	stats := httptest.NewRecorder()
	rl.StatsHandler(stats, httptest.NewRequest("GET", "/", nil))
	assert.JSONEq(t, `{"mode":"redis","breaker":"disabled"}`, stats.Body.String())
}

func TestClientIP(t *testing.T) {
	trusted := parseCIDRs([]string{"10.0.0.0/8", "not-a-cidr"})
	require.Len(t, trusted, 1)
	hdrs := []string{"X-Forwarded-For", "X-Real-IP"}

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
	assert.Equal(t, "203.0.113.9", clientIP(req, hdrs, trusted).String())

	// untrusted peers cannot spoof
	req.RemoteAddr = "198.51.100.7:5555"
	assert.Equal(t, "198.51.100.7", clientIP(req, hdrs, trusted).String())

	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "203.0.113.10", clientIP(req, hdrs, trusted).String())

	assert.Equal(t, "0.0.0.0", remoteAddrIP("garbage").String())
	assert.Equal(t, "192.0.2.1", remoteAddrIP("192.0.2.1").String())
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000/"})(okHandler)

	rec := doRequest(h, http.MethodOptions, "/api/send-request", "10.0.0.1:1", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = doRequest(h, http.MethodGet, "/api/logs", "10.0.0.1:1", map[string]string{"Origin": "http://evil.local"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	allowAny := CORS([]string{"*"})(okHandler)
	rec = doRequest(allowAny, http.MethodGet, "/", "10.0.0.1:1", map[string]string{"Origin": "http://x.local"})
	assert.Equal(t, "http://x.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(SecurityConfig{HSTSMaxAge: 60, IncludeSubdomains: true, TrustProxyHeader: true})(okHandler)

	rec := doRequest(h, "GET", "/", "10.0.0.1:1", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = doRequest(h, "GET", "/", "10.0.0.1:1", map[string]string{"X-Forwarded-Proto": "https"})
	assert.Equal(t, "max-age=60; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))

	assert.Equal(t, "max-age=31536000", hstsValue(SecurityConfig{}))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(ev any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func TestRequestAuditPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(NewRequestAuditMW(pub, nil, nil).Handler)
	r.Get("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	doRequest(r, "GET", "/api/users/42", "192.0.2.5:999", map[string]string{
		"User-Agent": "harness-test",
		"Origin":     "http://localhost:3000",
	})
	doRequest(r, "GET", "/nowhere", "192.0.2.5:999", nil)

	require.Len(t, pub.events, 2)
	ev, ok := pub.events[0].(telemetry.RequestAuditEvent)
	require.True(t, ok)
	assert.Equal(t, "/api/users/{id}", ev.Route)
	assert.Equal(t, "/api/users/42", ev.Path)
	assert.Equal(t, http.StatusTeapot, ev.Status)
	assert.Equal(t, "192.0.2.5", ev.ClientIP)
	assert.Equal(t, "harness-test", ev.UserAgent)
	assert.Equal(t, "http://localhost:3000", ev.Origin)
	assert.NotEmpty(t, ev.RequestID)

	miss := pub.events[1].(telemetry.RequestAuditEvent)
	assert.Equal(t, http.StatusNotFound, miss.Status)
}
