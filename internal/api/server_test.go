package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/capture"
	"github.com/MikeSquared-Agency/scribe/internal/dedup"
	"github.com/MikeSquared-Agency/scribe/internal/reconcile"
	"github.com/MikeSquared-Agency/scribe/internal/segment"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

type fakePipeline struct {
	result capture.Result
	err    error
	lastIn string
}

func (f *fakePipeline) Process(ctx context.Context, captureID, source, raw string) (capture.Result, error) {
	f.lastIn = raw
	return f.result, f.err
}

type fakeReader struct {
	conv *store.Conversation
}

func (f *fakeReader) GetConversation(ctx context.Context, ref uuid.UUID) (*store.Conversation, error) {
	if f.conv != nil && f.conv.Ref == ref {
		return f.conv, nil
	}
	return nil, nil
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(8760, "", &fakePipeline{}, &fakeReader{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(8760, "", &fakePipeline{}, &fakeReader{})

	req := httptest.NewRequest("GET", "/api/v1/scribe/status", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["agent"] != "scribe" {
		t.Errorf("expected agent scribe, got %q", body["agent"])
	}
}

func TestSubmitCapture(t *testing.T) {
	ref := uuid.New()
	fp := &fakePipeline{result: capture.Result{
		Plan:         reconcile.PlanCreateNew,
		Ref:          ref,
		MessageCount: 2,
		Appended:     2,
	}}
	srv := NewServer(8760, "secret", fp, &fakeReader{})

	payload := `{"raw_text":"User: hello\nAssistant: hi","source":"clipper"}`
	req := httptest.NewRequest("POST", "/api/v1/captures", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp CaptureResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Plan != "create_new" {
		t.Errorf("expected create_new plan, got %q", resp.Plan)
	}
	if resp.ConversationID != ref.String() {
		t.Errorf("expected conversation id %s, got %q", ref, resp.ConversationID)
	}
	if fp.lastIn != "User: hello\nAssistant: hi" {
		t.Errorf("pipeline received %q", fp.lastIn)
	}
}

func TestSubmitCaptureRequiresAuth(t *testing.T) {
	srv := NewServer(8760, "secret", &fakePipeline{}, &fakeReader{})

	req := httptest.NewRequest("POST", "/api/v1/captures", strings.NewReader(`{"raw_text":"hi"}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/v1/captures", strings.NewReader(`{"raw_text":"hi"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestSubmitCaptureRejectsEmptyBody(t *testing.T) {
	srv := NewServer(8760, "", &fakePipeline{}, &fakeReader{})

	req := httptest.NewRequest("POST", "/api/v1/captures", strings.NewReader(`{"raw_text":""}`))
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty raw_text, got %d", w.Code)
	}
}

func TestGetConversation(t *testing.T) {
	ref := uuid.New()
	conv := &store.Conversation{
		Ref:      ref,
		Identity: "abc123",
		Source:   "clipper",
		Messages: []segment.Message{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
		},
	}
	srv := NewServer(8760, "", &fakePipeline{}, &fakeReader{conv: conv})

	req := httptest.NewRequest("GET", "/api/v1/conversations/"+ref.String(), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ConversationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ConversationID != ref.String() {
		t.Errorf("expected id %s, got %q", ref, resp.ConversationID)
	}
	if len(resp.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(resp.Messages))
	}
}

func TestGetConversationNotFound(t *testing.T) {
	srv := NewServer(8760, "", &fakePipeline{}, &fakeReader{})

	req := httptest.NewRequest("GET", "/api/v1/conversations/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

type fakeDedup struct {
	lastExecute bool
}

func (f *fakeDedup) MergeDuplicateConversations(ctx context.Context, execute bool) (*dedup.Result, error) {
	f.lastExecute = execute
	return &dedup.Result{Execute: execute, Pairs: 1, Clusters: 1}, nil
}

func TestDedupScanEndpoints(t *testing.T) {
	fd := &fakeDedup{}
	srv := NewServer(8760, "secret", &fakePipeline{}, &fakeReader{}).WithDedup("secret", fd)

	// GET always dry-runs.
	req := httptest.NewRequest("GET", "/api/v1/dedup/scan", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fd.lastExecute {
		t.Error("GET scan must not execute merges")
	}

	// POST with execute set runs the merge.
	req = httptest.NewRequest("POST", "/api/v1/dedup/scan", strings.NewReader(`{"execute":true}`))
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !fd.lastExecute {
		t.Error("POST scan with execute did not execute")
	}

	// Auth applies to dedup routes.
	req = httptest.NewRequest("GET", "/api/v1/dedup/scan", nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
}

func TestGetConversationBadRef(t *testing.T) {
	srv := NewServer(8760, "", &fakePipeline{}, &fakeReader{})

	req := httptest.NewRequest("GET", "/api/v1/conversations/not-a-uuid", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
