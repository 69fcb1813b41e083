package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bluebricks/rba-harness/internal/client"
	"github.com/bluebricks/rba-harness/internal/exchangelog"
	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/util/logger"
	"github.com/bluebricks/rba-harness/internal/util/random"
)

// ErrTargetURLRequired is returned when a relay request has no target.
var ErrTargetURLRequired = errors.New("target URL is required")

const targetURLRequiredMessage = "Target URL is required"

// RiskAPI is the part of the upstream client the services depend on.
type RiskAPI interface {
	Forward(ctx context.Context, targetURL string, payload any, headers map[string]string) (json.RawMessage, error)
	GetJWTToken(ctx context.Context, req client.JWTRequest) (string, error)
	UpdateMFAStatus(ctx context.Context, u client.MFAStatusUpdate, token string) (json.RawMessage, error)
	MFAStatusURL(u client.MFAStatusUpdate) string
	GetAllUsers(ctx context.Context, token, requestTime string) ([]string, error)
}

// Recorder stores exchanges for the logs endpoint.
type Recorder interface {
	Record(request, response any, isError bool) exchangelog.Entry
}

// SendRequest is a single relay call. Payload is forwarded as is.
type SendRequest struct {
	TargetURL string            `json:"targetUrl"`
	Payload   any               `json:"payload"`
	Headers   map[string]string `json:"headers"`
}

// RelayError carries the status and body returned to the caller when a
// relay fails. Body is the upstream error body, or {message} when the
// upstream never answered.
type RelayError struct {
	StatusCode int
	Body       any
	Err        error
}

func (e *RelayError) Error() string { return e.Err.Error() }
func (e *RelayError) Unwrap() error { return e.Err }

// errorBody is the {message} shape used when there is no upstream body.
type errorBody struct {
	Message string `json:"message"`
}

// request shapes recorded in the exchange log
type (
	sentExchange struct {
		URL     string `json:"url"`
		Payload any    `json:"payload"`
	}
	failedExchange struct {
		URL     string            `json:"url"`
		Payload any               `json:"payload"`
		Headers map[string]string `json:"headers"`
	}
)

// RelayConfig holds relay switches.
type RelayConfig struct {
	MockMode bool
}

// RelayService forwards operator payloads to the risk API and records each
// exchange.
type RelayService struct {
	api RiskAPI
	log Recorder
	mfa *MFAFollowUp
	cfg RelayConfig
	rng *random.Rand
	now func() time.Time
}

func NewRelayService(api RiskAPI, log Recorder, mfa *MFAFollowUp, cfg RelayConfig, rng *random.Rand) *RelayService {
	if rng == nil {
		rng = random.New()
	}
	return &RelayService{api: api, log: log, mfa: mfa, cfg: cfg, rng: rng, now: time.Now}
}

// Send relays req. On success it returns the upstream body; on failure a
// *RelayError. Either way one exchange is recorded.
func (s *RelayService) Send(ctx context.Context, req SendRequest) (json.RawMessage, error) {
	if req.TargetURL == "" {
		return nil, s.fail(req, http.StatusInternalServerError, errorBody{Message: targetURLRequiredMessage}, ErrTargetURLRequired)
	}

	if s.cfg.MockMode {
		body := s.mockResponse(req.Payload)
		s.log.Record(sentExchange{URL: req.TargetURL, Payload: req.Payload}, body, false)
		metrics.RelayOutcomesTotal.WithLabelValues("mock").Inc()
		return body, nil
	}

	resp, err := s.api.Forward(ctx, req.TargetURL, req.Payload, req.Headers)
	if err != nil {
		var upErr *client.UpstreamError
		if errors.As(err, &upErr) {
			return nil, s.fail(req, upErr.StatusCode, upErr.Body, err)
		}
		return nil, s.fail(req, http.StatusInternalServerError, errorBody{Message: err.Error()}, err)
	}

	if s.mfa != nil && RequiresMFA(resp) {
		s.mfa.Run(ctx, req.TargetURL, resp)
	}

	s.log.Record(sentExchange{URL: req.TargetURL, Payload: req.Payload}, resp, false)
	metrics.RelayOutcomesTotal.WithLabelValues("success").Inc()
	return resp, nil
}

func (s *RelayService) fail(req SendRequest, status int, body any, err error) error {
	logger.Errorf("[Relay] %s: %v", req.TargetURL, err)
	s.log.Record(failedExchange{URL: req.TargetURL, Payload: req.Payload, Headers: req.Headers}, body, true)
	metrics.RelayOutcomesTotal.WithLabelValues("error").Inc()
	return &RelayError{StatusCode: status, Body: body, Err: err}
}

type mockResult struct {
	ResultMessage string   `json:"resultMessage"`
	ResultCode    string   `json:"resultCode"`
	Timestamp     string   `json:"timestamp"`
	ResultData    mockData `json:"resultData"`
}

type mockData struct {
	RiskScore     int      `json:"riskScore"`
	Decision      string   `json:"decision"`
	TransactionID any      `json:"transactionId"`
	UserID        any      `json:"userId"`
	PaymentMode   any      `json:"paymentMode"`
	RiskFactors   []string `json:"riskFactors"`
}

// mockResponse fabricates an approval without calling upstream. Payload
// fields that are missing come back as null.
func (s *RelayService) mockResponse(payload any) json.RawMessage {
	var p struct {
		TransactionDetails struct {
			TransactionID any `json:"transactionId"`
			PaymentMode   any `json:"payment_mode"`
		} `json:"transactionDetails"`
		UserDetails struct {
			UserID any `json:"user_id"`
		} `json:"userDetails"`
	}
	if raw, err := json.Marshal(payload); err == nil {
		_ = json.Unmarshal(raw, &p)
	}

	decision := "REVIEW"
	if s.rng.Float64() > 0.7 {
		decision = "APPROVE"
	}
	body, _ := json.Marshal(mockResult{
		ResultMessage: "Transaction processed successfully",
		ResultCode:    "0000",
		Timestamp:     s.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		ResultData: mockData{
			RiskScore:     s.rng.IntN(100),
			Decision:      decision,
			TransactionID: p.TransactionDetails.TransactionID,
			UserID:        p.UserDetails.UserID,
			PaymentMode:   p.TransactionDetails.PaymentMode,
			RiskFactors: []string{
				"Standard device profile",
				"Normal transaction pattern",
				"Verified location",
			},
		},
	})
	return body
}
