package modules

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

type capturedRequest struct {
	body      []byte
	signature string
	trigger   string
}

func webhookTestServer(t *testing.T, status int, respBody string) (*httptest.Server, func() capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var captured capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		captured = capturedRequest{
			body:      body,
			signature: r.Header.Get("X-Mizan-Signature"),
			trigger:   r.Header.Get("X-Mizan-Trigger-Type"),
		}
		mu.Unlock()
		w.WriteHeader(status)
		io.WriteString(w, respBody)
	}))
	t.Cleanup(srv.Close)

	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return captured
	}
}

func webhookContext(url, secret string) domain.TriggerContext {
	params := map[string]any{"url": url}
	if secret != "" {
		params["secret"] = secret
	}
	return domain.TriggerContext{
		TenantID:    uuid.New(),
		TriggerType: "skill_gaps_critical",
		Snapshot:    domain.Snapshot{ID: uuid.New()},
		TriggerPayload: map[string]any{
			"keywords": []string{"critical"},
		},
		Params: params,
	}
}

// TestWebhookHandler_Success verifies a signed request reaches the module
// and the response body feeds action, data and next triggers.
func TestWebhookHandler_Success(t *testing.T) {
	srv, last := webhookTestServer(t, http.StatusOK,
		`{"action":"initiate_training_program","data":{"program":"go"},"next_triggers":["compliance_refresh"]}`)

	out := NewWebhookHandler().Handle(context.Background(), webhookContext(srv.URL, "s3cret"))
	if !out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Action != "initiate_training_program" {
		t.Errorf("action = %q", out.Action)
	}
	if out.Data["program"] != "go" {
		t.Errorf("data = %v", out.Data)
	}
	if len(out.NextTriggers) != 1 || out.NextTriggers[0] != "compliance_refresh" {
		t.Errorf("next triggers = %v", out.NextTriggers)
	}

	req := last()
	if req.trigger != "skill_gaps_critical" {
		t.Errorf("trigger header = %q", req.trigger)
	}
	if !VerifySignature("s3cret", req.body, req.signature) {
		t.Error("signature does not verify against the delivered body")
	}

	var payload webhookPayload
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatalf("unmarshal delivered body: %v", err)
	}
	if payload.TriggerType != "skill_gaps_critical" {
		t.Errorf("payload = %+v", payload)
	}
}

// TestWebhookHandler_EmptyResponseBody verifies a bare 2xx still succeeds
// with the default action.
func TestWebhookHandler_EmptyResponseBody(t *testing.T) {
	srv, _ := webhookTestServer(t, http.StatusNoContent, "")

	out := NewWebhookHandler().Handle(context.Background(), webhookContext(srv.URL, ""))
	if !out.Success || out.Action != "webhook_delivered" {
		t.Errorf("outcome = %+v", out)
	}
	if len(out.NextTriggers) != 0 {
		t.Errorf("next triggers = %v", out.NextTriggers)
	}
}

// TestWebhookHandler_Failures covers non-2xx status, missing url and an
// unreachable module; all must return failed outcomes, never panic.
func TestWebhookHandler_Failures(t *testing.T) {
	h := NewWebhookHandler()

	srv, _ := webhookTestServer(t, http.StatusBadGateway, "upstream broke")
	out := h.Handle(context.Background(), webhookContext(srv.URL, ""))
	if out.Success || out.Error == "" {
		t.Errorf("5xx outcome = %+v", out)
	}

	out = h.Handle(context.Background(), domain.TriggerContext{Params: map[string]any{}})
	if out.Success {
		t.Error("missing url must fail")
	}

	out = h.Handle(context.Background(), webhookContext("http://127.0.0.1:1/unreachable", ""))
	if out.Success {
		t.Error("unreachable module must fail")
	}
}

// TestWebhookHandler_HonorsContext verifies cancellation cuts the call off.
func TestWebhookHandler_HonorsContext(t *testing.T) {
	srv, _ := webhookTestServer(t, http.StatusOK, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewWebhookHandler().Handle(ctx, webhookContext(srv.URL, ""))
	if out.Success {
		t.Error("cancelled context must produce a failed outcome")
	}
}
