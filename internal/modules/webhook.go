package modules

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Annas82200/mizan-backend-sub010/internal/domain"
)

// WebhookHandler lets a remote capability module participate without
// linking into the binary: the trigger context is posted as JSON to the
// URL given in the definition's action parameters.
//
// Recognized params: "url" (required), "secret" (HMAC key, optional).
// A 2xx response is a success; the response body may carry
// {"action": ..., "data": ..., "next_triggers": [...]} to feed the chain.
type WebhookHandler struct {
	client *http.Client
}

func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{client: &http.Client{}}
}

type webhookPayload struct {
	TenantID    string         `json:"tenant_id"`
	TriggerType string         `json:"trigger_type"`
	SnapshotID  string         `json:"snapshot_id"`
	Generation  int            `json:"generation"`
	Payload     map[string]any `json:"payload,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

type webhookResponse struct {
	Action       string         `json:"action"`
	Data         map[string]any `json:"data"`
	NextTriggers []string       `json:"next_triggers"`
}

// maxWebhookResponseSize caps how much of a module's response is read (64KB).
const maxWebhookResponseSize = 64 << 10

func (h *WebhookHandler) Handle(ctx context.Context, tc domain.TriggerContext) domain.Outcome {
	url, _ := tc.Params["url"].(string)
	if url == "" {
		return failure("webhook: no url in action parameters")
	}
	secret, _ := tc.Params["secret"].(string)

	body, err := json.Marshal(webhookPayload{
		TenantID:    tc.TenantID.String(),
		TriggerType: tc.TriggerType,
		SnapshotID:  tc.Snapshot.ID.String(),
		Generation:  tc.Snapshot.Generation,
		Payload:     tc.TriggerPayload,
		Context:     tc.Snapshot.Context,
	})
	if err != nil {
		return failure(fmt.Sprintf("webhook: marshal: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Sprintf("webhook: create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Mizan-Trigger-Type", tc.TriggerType)
	if secret != "" {
		req.Header.Set("X-Mizan-Signature", computeSignature(secret, body))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return failure(fmt.Sprintf("webhook: send: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure(fmt.Sprintf("webhook: module returned status %d", resp.StatusCode))
	}

	outcome := domain.Outcome{
		Success: true,
		Action:  "webhook_delivered",
	}

	var wr webhookResponse
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponseSize))
	if err == nil && len(data) > 0 && json.Unmarshal(data, &wr) == nil {
		if wr.Action != "" {
			outcome.Action = wr.Action
		}
		outcome.Data = wr.Data
		outcome.NextTriggers = wr.NextTriggers
	}

	return outcome
}

func failure(msg string) domain.Outcome {
	return domain.Outcome{Success: false, Error: msg}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for module implementors to verify incoming requests.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
