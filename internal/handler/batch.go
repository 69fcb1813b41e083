package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/bluebricks/rba-harness/internal/batch"
	"github.com/bluebricks/rba-harness/internal/dispatch"
	"github.com/bluebricks/rba-harness/internal/report"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// BatchRunner plans and dispatches a multi-request run.
type BatchRunner interface {
	Run(ctx context.Context, p batch.Plan) (*batch.Result, error)
}

type BatchHandler struct {
	runner BatchRunner
}

func NewBatchHandler(runner BatchRunner) *BatchHandler {
	return &BatchHandler{runner: runner}
}

// Dispatch handles POST /api/dispatch-batch. The call returns once every
// payload has been answered or has failed.
func (h *BatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var plan batch.Plan
	if err := decodeJSON(w, r, &plan); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.runner.Run(r.Context(), plan)
	if err != nil {
		if isPlanError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Errorf("[Batch] run failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func isPlanError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs) ||
		errors.Is(err, batch.ErrBatchOverflow) ||
		errors.Is(err, dispatch.ErrInvalidWindow) ||
		errors.Is(err, dispatch.ErrUnknownMode) ||
		errors.Is(err, dispatch.ErrSpanTooLong)
}

type analyzeRequest struct {
	Kind     report.Kind     `json:"kind"`
	Response report.Response `json:"response"`
}

// Analyze handles POST /api/analyze: it classifies one upstream answer.
func Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch req.Kind {
	case "":
		req.Kind = report.KindLogin
	case report.KindLogin, report.KindTransaction:
	default:
		writeError(w, http.StatusBadRequest, "kind must be login or transaction")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"analysis": report.Analyze(req.Kind, req.Response),
	})
}
