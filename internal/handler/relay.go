package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bluebricks/rba-harness/internal/exchangelog"
	"github.com/bluebricks/rba-harness/internal/service"
)

// Relayer forwards one operator request upstream.
type Relayer interface {
	Send(ctx context.Context, req service.SendRequest) (json.RawMessage, error)
}

// ExchangeLog is the in-memory log served by /api/logs.
type ExchangeLog interface {
	Entries() []exchangelog.Entry
	Clear()
}

type RelayHandler struct {
	relay Relayer
	log   ExchangeLog
}

func NewRelayHandler(relay Relayer, log ExchangeLog) *RelayHandler {
	return &RelayHandler{relay: relay, log: log}
}

// SendRequest handles POST /api/send-request.
func (h *RelayHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}

	resp, err := h.relay.Send(r.Context(), req)
	if err != nil {
		var relayErr *service.RelayError
		if errors.As(err, &relayErr) {
			writeError(w, relayErr.StatusCode, relayErr.Body)
			return
		}
		writeError(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"response": resp,
	})
}

// Logs handles GET /api/logs. The body is the raw entry array, newest first.
func (h *RelayHandler) Logs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.log.Entries())
}

// ClearLogs handles POST /api/clear-logs.
func (h *RelayHandler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	h.log.Clear()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logs cleared",
	})
}
