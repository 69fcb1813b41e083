package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebricks/rba-harness/internal/batch"
	"github.com/bluebricks/rba-harness/internal/config"
	"github.com/bluebricks/rba-harness/internal/device"
	"github.com/bluebricks/rba-harness/internal/dispatch"
	"github.com/bluebricks/rba-harness/internal/exchangelog"
	"github.com/bluebricks/rba-harness/internal/middleware"
	"github.com/bluebricks/rba-harness/internal/repository"
	"github.com/bluebricks/rba-harness/internal/service"
	"github.com/bluebricks/rba-harness/internal/util/random"
)

type fakeRelay struct {
	resp json.RawMessage
	err  error
	got  []service.SendRequest
}

func (f *fakeRelay) Send(_ context.Context, req service.SendRequest) (json.RawMessage, error) {
	f.got = append(f.got, req)
	return f.resp, f.err
}

type fakeRunner struct {
	res *batch.Result
	err error
}

func (f fakeRunner) Run(context.Context, batch.Plan) (*batch.Result, error) { return f.res, f.err }

type fakeArchive struct {
	records []repository.ExchangeRecord
	limit   int
}

func (f *fakeArchive) Recent(_ context.Context, limit int) ([]repository.ExchangeRecord, error) {
	f.limit = limit
	return f.records, nil
}

type testEnv struct {
	router    http.Handler
	relay     *fakeRelay
	log       *exchangelog.Buffer
	storePath string
}

func newTestEnv(t *testing.T, runner BatchRunner) *testEnv {
	t.Helper()
	log := exchangelog.NewBuffer(10)
	relay := &fakeRelay{resp: json.RawMessage(`{"resultCode":"0000"}`)}
	storePath := filepath.Join(t.TempDir(), "device_details.json")
	gen := device.NewGenerator(random.NewSeeded(1, 2), nil)
	devices := service.NewDeviceService(device.NewStore(storePath, gen), gen, log, nil, "")

	cfg := &config.Config{Env: "test", Port: 5000, MockMode: true}
	cfg.DeviceStore.Path = storePath

	d := RouterDeps{
		Relay:          NewRelayHandler(relay, log),
		Devices:        NewDeviceHandler(devices),
		Health:         NewHealthHandler(cfg, "test"),
		AllowedOrigins: []string{"http://localhost:3000"},
		Security:       middleware.DefaultSecurityConfig(),
		RequestTimeout: 5 * time.Second,
	}
	if runner != nil {
		d.Batch = NewBatchHandler(runner)
	}
	return &testEnv{router: NewRouter(d), relay: relay, log: log, storePath: storePath}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestSendRequestSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/send-request",
		`{"targetUrl":"http://up/login?userId=u1","payload":{"a":1},"headers":{"X-Test":"1"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"response":{"resultCode":"0000"}}`, rec.Body.String())
	require.Len(t, env.relay.got, 1)
	assert.Equal(t, "http://up/login?userId=u1", env.relay.got[0].TargetURL)
	assert.Equal(t, "1", env.relay.got[0].Headers["X-Test"])
}

func TestSendRequestRelayError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.relay.err = &service.RelayError{
		StatusCode: http.StatusBadGateway,
		Body:       json.RawMessage(`{"resultMessage":"bad secret"}`),
		Err:        errors.New("upstream 502"),
	}
	rec := env.do(t, http.MethodPost, "/api/send-request", `{"targetUrl":"http://up"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"resultMessage":"bad secret"}}`, rec.Body.String())

	env.relay.err = errors.New("boom")
	rec = env.do(t, http.MethodPost, "/api/send-request", `{"targetUrl":"http://up"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"message":"boom"}}`, rec.Body.String())
}

func TestSendRequestBadBody(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/send-request", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.relay.got)
}

func TestLogsAndClear(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/logs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	env.log.Record(map[string]string{"url": "first"}, map[string]int{"n": 1}, false)
	env.log.Record(map[string]string{"url": "second"}, map[string]int{"n": 2}, true)

	rec = env.do(t, http.MethodGet, "/api/logs", "")
	var entries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0]["request"].(map[string]any)["url"])
	assert.Equal(t, true, entries[0]["isError"])
	assert.NotEmpty(t, entries[0]["id"])

	rec = env.do(t, http.MethodPost, "/api/clear-logs", "")
	assert.JSONEq(t, `{"success":true,"message":"Logs cleared"}`, rec.Body.String())
	assert.Equal(t, 0, env.log.Len())
}

func TestDeviceDetailsErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/device-details", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Failed to load device details"}`, rec.Body.String())
	require.Equal(t, 1, env.log.Len())
	assert.True(t, env.log.Entries()[0].IsError)

	require.NoError(t, os.WriteFile(env.storePath, []byte("{oops"), 0o600))
	rec = env.do(t, http.MethodGet, "/api/device-details", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid device details format"}`, rec.Body.String())
}

func TestAddDeviceProfiles(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, body := range []string{`{}`, `{"userIds":[]}`, `{"userIds":"alice"}`} {
		rec := env.do(t, http.MethodPost, "/api/add-device-profiles", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"success":false,"error":"userIds array required"}`, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/api/add-device-profiles", `{"userIds":["alice","bob"]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"Device profiles added","userIds":["alice","bob"]}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/device-details", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Success       bool                         `json:"success"`
		DeviceDetails map[string][]json.RawMessage `json:"deviceDetails"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Len(t, out.DeviceDetails["alice"], 3)
	assert.Len(t, out.DeviceDetails["bob"], 3)
}

func TestAddDeviceProfilesWriteFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	gen := device.NewGenerator(random.NewSeeded(3, 4), nil)
	h := NewDeviceHandler(service.NewDeviceService(device.NewStore(filepath.Join(blocker, "d.json"), gen), gen, nil, nil, ""))

	rec := httptest.NewRecorder()
	h.AddProfiles(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"userIds":["u"]}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Failed to update device details"}`, rec.Body.String())
}

func TestDispatchBatch(t *testing.T) {
	cases := []struct {
		name   string
		runner fakeRunner
		status int
	}{
		{"overflow", fakeRunner{err: batch.ErrBatchOverflow}, http.StatusBadRequest},
		{"window", fakeRunner{err: dispatch.ErrInvalidWindow}, http.StatusBadRequest},
		{"span", fakeRunner{err: dispatch.ErrSpanTooLong}, http.StatusBadRequest},
		{"validation", fakeRunner{err: fmt.Errorf("batch: invalid plan: %w", validator.ValidationErrors{})}, http.StatusBadRequest},
		{"internal", fakeRunner{err: errors.New("disk on fire")}, http.StatusInternalServerError},
		{"ok", fakeRunner{res: &batch.Result{Success: true, Total: 3, Fraud: 1, Responses: []json.RawMessage{}}}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.runner)
			rec := env.do(t, http.MethodPost, "/api/dispatch-batch", `{"kind":"login","targetUrl":"http://up"}`)
			assert.Equal(t, tc.status, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.status == http.StatusOK, body["success"])
			if tc.status == http.StatusOK {
				assert.EqualValues(t, 3, body["total"])
				assert.EqualValues(t, 1, body["fraud"])
			}
		})
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/analyze", `{
		"response": {
			"resultMessage": "Required MFA approval",
			"resultData": {"action": "Require MFA", "riskScore": "42"}
		}
	}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Success  bool `json:"success"`
		Analysis struct {
			Action     string   `json:"action"`
			FinalScore *float64 `json:"finalScore"`
			AIScore    string   `json:"aiScore"`
			RuleRisk   string   `json:"ruleRisk"`
		} `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "Require MFA", out.Analysis.Action)
	require.NotNil(t, out.Analysis.FinalScore)
	assert.Equal(t, 42.0, *out.Analysis.FinalScore)
	assert.Equal(t, "N/A", out.Analysis.AIScore)
	assert.Equal(t, "medium", out.Analysis.RuleRisk)

	rec = env.do(t, http.MethodPost, "/api/analyze", `{"kind":"refund","response":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentArchive(t *testing.T) {
	archive := &fakeArchive{records: []repository.ExchangeRecord{{ID: "e1", URL: "http://up"}}}
	h := RecentArchive(archive)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/archive?limit=5", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, archive.limit)
	assert.Contains(t, rec.Body.String(), `"e1"`)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/archive?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflightOnAPI(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/send-request", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
