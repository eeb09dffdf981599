package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/scribe/internal/dedup"
)

// DedupRunner is the store slice behind the dedup scan endpoints.
type DedupRunner interface {
	MergeDuplicateConversations(ctx context.Context, execute bool) (*dedup.Result, error)
}

// ScanRequest is the payload for POST /api/v1/dedup/scan.
type ScanRequest struct {
	Execute bool `json:"execute"` // false: report what would merge
}

// WithDedup mounts the dedup scan routes. GET always dry-runs; POST merges
// when execute is set.
func (s *Server) WithDedup(apiToken string, runner DedupRunner) *Server {
	s.router.Route("/api/v1/dedup", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/scan", s.scanHandler(runner, false))
		r.Get("/scan", s.scanHandler(runner, true))
	})
	return s
}

func (s *Server) scanHandler(runner DedupRunner, dryRunOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		execute := false
		if !dryRunOnly {
			var req ScanRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
				return
			}
			execute = req.Execute
		}

		result, err := runner.MergeDuplicateConversations(r.Context(), execute)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":"scan failed: %v"}`, err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}
