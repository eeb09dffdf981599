package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/capture"
	"github.com/MikeSquared-Agency/scribe/internal/reconcile"
	"github.com/MikeSquared-Agency/scribe/internal/segment"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

// Processor is the capture pipeline slice the API needs.
type Processor interface {
	Process(ctx context.Context, captureID, source, raw string) (capture.Result, error)
}

// ConversationReader fetches stored conversations by reference.
type ConversationReader interface {
	GetConversation(ctx context.Context, ref uuid.UUID) (*store.Conversation, error)
}

// CaptureRequest is the payload for POST /api/v1/captures.
type CaptureRequest struct {
	RawText string `json:"raw_text"`
	Source  string `json:"source,omitempty"`
}

// CaptureResponse reports what the capture did to storage.
type CaptureResponse struct {
	CaptureID      string `json:"capture_id"`
	Plan           string `json:"plan,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageCount   int    `json:"message_count"`
	Appended       int    `json:"appended"`
	Empty          bool   `json:"empty,omitempty"`
	PendingReview  bool   `json:"pending_review,omitempty"`
	Forked         bool   `json:"forked,omitempty"`
}

// ConversationResponse is the payload for GET /api/v1/conversations/{ref}.
type ConversationResponse struct {
	ConversationID string            `json:"conversation_id"`
	Identity       string            `json:"identity"`
	Source         string            `json:"source"`
	Messages       []segment.Message `json:"messages"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	MergedInto     *uuid.UUID        `json:"merged_into,omitempty"`
}

// submitCapture handles POST /api/v1/captures.
func (s *Server) submitCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid JSON: %v"}`, err), http.StatusBadRequest)
		return
	}
	if req.RawText == "" {
		http.Error(w, `{"error":"raw_text is required"}`, http.StatusBadRequest)
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	captureID := uuid.New().String()
	res, err := s.pipeline.Process(r.Context(), captureID, req.Source, req.RawText)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"capture failed: %v"}`, err), http.StatusInternalServerError)
		return
	}

	resp := CaptureResponse{
		CaptureID:     captureID,
		Plan:          string(res.Plan),
		MessageCount:  res.MessageCount,
		Appended:      res.Appended,
		Empty:         res.Empty,
		PendingReview: res.PendingReview,
		Forked:        res.Forked,
	}
	if res.Ref != uuid.Nil {
		resp.ConversationID = res.Ref.String()
	}

	w.Header().Set("Content-Type", "application/json")
	if res.Plan == reconcile.PlanCreateNew {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(resp)
}

// getConversation handles GET /api/v1/conversations/{ref}.
func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	ref, err := uuid.Parse(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, `{"error":"invalid conversation id"}`, http.StatusBadRequest)
		return
	}

	conv, err := s.reader.GetConversation(r.Context(), ref)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"lookup failed: %v"}`, err), http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ConversationResponse{
		ConversationID: conv.Ref.String(),
		Identity:       string(conv.Identity),
		Source:         conv.Source,
		Messages:       conv.Messages,
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
		MergedInto:     conv.MergedInto,
	})
}
