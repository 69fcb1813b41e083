package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bluebricks/rba-harness/internal/config"
	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

const (
	jwtPath       = "/adaptivetoken/getJWTToken"
	mfaStatusPath = "/FRM/updateMFAStatus"
	usersPath     = "/user/getAllUsers"
)

// ErrNoToken is returned when the token endpoint answers without a token.
var ErrNoToken = errors.New("upstream: no token in response")

// UpstreamError is a non-2xx answer from the risk API. Body holds the decoded
// response so callers can pass it through unchanged.
type UpstreamError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, truncate(string(e.Body), 256))
}

// JWTRequest asks the token endpoint for a user token. The relay's MFA
// follow-up omits the account ID, the device seeding flow includes it.
type JWTRequest struct {
	UserID         string
	RequestTime    string
	IncludeAccount bool
}

// MFAStatusUpdate reports the outcome of an MFA challenge for a tracked request.
type MFAStatusUpdate struct {
	DeviceType  string
	RequestTime string
	Status      int
	TrackingID  string
	UserID      string
}

// RiskAPIClient talks to the RBA/FRM API. Calls are never retried.
type RiskAPIClient struct {
	baseURL    string
	accountID  string
	httpClient *http.Client
	tracer     trace.Tracer
}

func NewRiskAPIClient(cfg config.UpstreamConfig, httpClient *http.Client) *RiskAPIClient {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &RiskAPIClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accountID:  cfg.AccountID,
		httpClient: httpClient,
		tracer:     otel.Tracer("rba-upstream"),
	}
}

// Configured reports whether a base URL is set. The relay itself only needs
// one for MFA follow-ups.
func (c *RiskAPIClient) Configured() bool { return c.baseURL != "" }

// Forward POSTs payload to targetURL with the caller's headers.
func (c *RiskAPIClient) Forward(ctx context.Context, targetURL string, payload any, headers map[string]string) (json.RawMessage, error) {
	return c.do(ctx, "forward", http.MethodPost, targetURL, payload, headers)
}

// GetJWTToken returns the token carried in resultData.
func (c *RiskAPIClient) GetJWTToken(ctx context.Context, req JWTRequest) (string, error) {
	var pairs []string
	if req.IncludeAccount {
		pairs = append(pairs, "accountId", c.accountID)
	}
	pairs = append(pairs, "requestTime", req.RequestTime, "userId", req.UserID)

	body, err := c.do(ctx, "get_jwt", http.MethodPost, c.baseURL+jwtPath+"?"+orderedQuery(pairs...), nil, nil)
	if err != nil {
		return "", err
	}
	var envelope struct {
		ResultData any `json:"resultData"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	token, ok := envelope.ResultData.(string)
	if !ok || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// MFAStatusURL is the update endpoint for u, including the account ID.
func (c *RiskAPIClient) MFAStatusURL(u MFAStatusUpdate) string {
	return c.baseURL + mfaStatusPath + "?" + orderedQuery(
		"deviceType", u.DeviceType,
		"requestTime", u.RequestTime,
		"status", strconv.Itoa(u.Status),
		"trackingId", u.TrackingID,
		"userId", u.UserID,
		"accountId", c.accountID,
	)
}

// UpdateMFAStatus POSTs an empty object to the MFA status endpoint.
func (c *RiskAPIClient) UpdateMFAStatus(ctx context.Context, u MFAStatusUpdate, token string) (json.RawMessage, error) {
	return c.do(ctx, "update_mfa_status", http.MethodPost, c.MFAStatusURL(u), struct{}{},
		map[string]string{"AuthToken": token})
}

// GetAllUsers lists the user IDs of the configured account.
func (c *RiskAPIClient) GetAllUsers(ctx context.Context, token, requestTime string) ([]string, error) {
	target := c.baseURL + usersPath + "?" + orderedQuery("accountId", c.accountID, "requestTime", requestTime)
	body, err := c.do(ctx, "get_all_users", http.MethodGet, target, nil, map[string]string{"AuthToken": token})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		ResultData []struct {
			UserID string `json:"userid"`
		} `json:"resultData"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode users response: %w", err)
	}
	ids := make([]string, 0, len(envelope.ResultData))
	for _, u := range envelope.ResultData {
		ids = append(ids, u.UserID)
	}
	return ids, nil
}

func (c *RiskAPIClient) do(ctx context.Context, op, method, target string, body any, headers map[string]string) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, "upstream."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", redactQuery(target)),
	)

	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(op, "transport_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad request")
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(op, "transport_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		logger.Warnf("[Upstream] %s %s failed: %v", op, redactQuery(target), err)
		return nil, fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(op, "transport_error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	decoded := asJSON(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequestsTotal.WithLabelValues(op, "http_error").Inc()
		span.SetStatus(codes.Error, resp.Status)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: decoded}
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(op, "success").Inc()
	return decoded, nil
}

// asJSON keeps JSON bodies as they are and wraps anything else as a JSON string.
func asJSON(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

// orderedQuery encodes key/value pairs in the given order, spaces as %20.
func orderedQuery(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(pairs[i]))
		b.WriteByte('=')
		b.WriteString(escape(pairs[i+1]))
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func redactQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
