package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bluebricks/rba-harness/internal/repository"
)

// ArchiveReader lists archived exchanges.
type ArchiveReader interface {
	Recent(ctx context.Context, limit int) ([]repository.ExchangeRecord, error)
}

// RecentArchive handles GET /api/archive?limit=N.
func RecentArchive(archive ArchiveReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 1000 {
				writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
				return
			}
			limit = n
		}
		records, err := archive.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read archive")
			return
		}
		if records == nil {
			records = []repository.ExchangeRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"exchanges": records,
		})
	}
}
