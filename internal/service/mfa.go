package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bluebricks/rba-harness/internal/client"
	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/util/logger"
	"github.com/bluebricks/rba-harness/internal/util/random"
	"github.com/bluebricks/rba-harness/internal/util/timefmt"
)

const (
	mfaRequiredMessage = "Required MFA approval"
	mfaRequiredAction  = "Require MFA"
	defaultDeviceType  = "3"

	// mfaApproveRate is the share of follow-ups reported as approved (status 1).
	mfaApproveRate = 0.9
)

type mfaSignal struct {
	ResultMessage string `json:"resultMessage"`
	ResultData    *struct {
		Action     any `json:"action"`
		TrackingID any `json:"trackingId"`
	} `json:"resultData"`
}

func decodeSignal(resp json.RawMessage) mfaSignal {
	var sig mfaSignal
	_ = json.Unmarshal(resp, &sig)
	return sig
}

// RequiresMFA reports whether the upstream asked for an MFA challenge.
func RequiresMFA(resp json.RawMessage) bool {
	sig := decodeSignal(resp)
	if sig.ResultMessage == mfaRequiredMessage {
		return true
	}
	return sig.ResultData != nil && sig.ResultData.Action == mfaRequiredAction
}

// MFAFollowUp simulates the user answering an MFA challenge by reporting a
// random outcome back to the risk API.
type MFAFollowUp struct {
	api    RiskAPI
	log    Recorder
	tokens *client.TokenCache
	rng    *random.Rand
	now    func() time.Time
}

// NewMFAFollowUp builds the follow-up. tokens may be nil to fetch a token
// for every challenge.
func NewMFAFollowUp(api RiskAPI, log Recorder, tokens *client.TokenCache, rng *random.Rand, now func() time.Time) *MFAFollowUp {
	if rng == nil {
		rng = random.New()
	}
	if now == nil {
		now = time.Now
	}
	return &MFAFollowUp{api: api, log: log, tokens: tokens, rng: rng, now: now}
}

// Run reports the MFA outcome for the request sent to targetURL. Failures
// are logged and recorded but never returned.
func (m *MFAFollowUp) Run(ctx context.Context, targetURL string, resp json.RawMessage) {
	sig := decodeSignal(resp)
	query := targetQuery(targetURL)

	update := client.MFAStatusUpdate{
		DeviceType:  query.Get("deviceType"),
		RequestTime: timefmt.RequestTime(m.now()),
		Status:      2,
		UserID:      query.Get("userId"),
	}
	if update.DeviceType == "" {
		update.DeviceType = defaultDeviceType
	}
	if m.rng.Float64() < mfaApproveRate {
		update.Status = 1
	}
	if sig.ResultData != nil {
		update.TrackingID = scalar(sig.ResultData.TrackingID)
	}

	token, err := m.token(ctx, update)
	if err != nil {
		logger.Errorf("[MFA] fetching token for %s: %v", update.UserID, err)
	}

	mfaURL := m.api.MFAStatusURL(update)
	body, err := m.api.UpdateMFAStatus(ctx, update, token)
	if err != nil {
		metrics.MFAFollowUpsTotal.WithLabelValues("error").Inc()
		var errBody any = errorBody{Message: err.Error()}
		var upErr *client.UpstreamError
		if errors.As(err, &upErr) {
			errBody = upErr.Body
		}
		m.log.Record(struct {
			URL string `json:"url"`
		}{URL: mfaURL}, errBody, true)
		return
	}

	metrics.MFAFollowUpsTotal.WithLabelValues("success").Inc()
	logger.Infof("[MFA] response: %s for %s to %d", decodeSignal(body).ResultMessage, update.UserID, update.Status)
}

func (m *MFAFollowUp) token(ctx context.Context, u client.MFAStatusUpdate) (string, error) {
	fetch := func(ctx context.Context) (string, error) {
		return m.api.GetJWTToken(ctx, client.JWTRequest{UserID: u.UserID, RequestTime: u.RequestTime})
	}
	if m.tokens == nil {
		return fetch(ctx)
	}
	return m.tokens.Token(ctx, u.UserID, fetch)
}

func targetQuery(target string) url.Values {
	_, rawQuery, _ := strings.Cut(target, "?")
	// ParseQuery keeps every pair it could decode alongside the error.
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		logger.Debugf("[MFA] partial target query %q: %v", rawQuery, err)
	}
	return q
}

// scalar renders a JSON scalar the way it would appear in a query string.
func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
