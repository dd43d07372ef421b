package recon

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/harborstay/harborstay/internal/observability"
	"github.com/harborstay/harborstay/internal/qr"
)

func newWebhookServer(t *testing.T) (*httptest.Server, *memoryReconRepo, *memoryRequests, *Signer) {
	t.Helper()
	svc, repo, requests, signer := newReconService(t)
	handler := NewHandler(slog.Default(), svc, nil, nil, observability.NewMetrics())

	r := chi.NewRouter()
	r.Route("/webhooks", func(r chi.Router) {
		handler.MountRoutes(r)
	})
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, repo, requests, signer
}

func postWebhook(t *testing.T, server *httptest.Server, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(server.URL+"/webhooks/bank", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func webhookBody(signer *Signer, externalID string, amount int64, narration string) map[string]any {
	transferredAt := time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC)
	n := Notification{
		ExternalID:    externalID,
		Amount:        amount,
		Narration:     narration,
		TransferredAt: transferredAt,
	}
	return map[string]any{
		"transaction_id": externalID,
		"amount":         amount,
		"narration":      narration,
		"transferred_at": transferredAt.Unix(),
		"signature":      signer.Sign(n),
	}
}

func TestWebhookAcknowledgesMatch(t *testing.T) {
	server, _, requests, signer := newWebhookServer(t)
	addPendingRequest(requests, 7, 2_400_000, time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC))

	resp, body := postWebhook(t, server, webhookBody(signer, "FT100", 2_400_000, "BKG1042 382114"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(OutcomeMatched), body["outcome"])
	require.Equal(t, false, body["duplicate"])
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	server, repo, _, _ := newWebhookServer(t)

	resp, body := postWebhook(t, server, map[string]any{
		"transaction_id": "FT101",
		"amount":         1000,
		"narration":      "BKG1042 382114",
		"transferred_at": time.Now().Unix(),
		"signature":      "not-a-signature",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, body["title"])
	// The delivery is recorded even though it was rejected.
	require.Contains(t, repo.txns, "FT101")
}

func TestWebhookAcknowledgesUnmatched(t *testing.T) {
	server, _, _, signer := newWebhookServer(t)

	resp, body := postWebhook(t, server, webhookBody(signer, "FT102", 1000, "no codes here"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(OutcomeNoCodeFound), body["outcome"])
}

func TestWebhookReplayReportsDuplicate(t *testing.T) {
	server, _, requests, signer := newWebhookServer(t)
	addPendingRequest(requests, 7, 2_400_000, time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC))

	payload := webhookBody(signer, "FT103", 2_400_000, "BKG1042 382114")
	resp, _ := postWebhook(t, server, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postWebhook(t, server, payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(OutcomeMatched), body["outcome"])
	require.Equal(t, true, body["duplicate"])
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	server, _, _, signer := newWebhookServer(t)

	// Unknown fields are rejected at the boundary.
	body := webhookBody(signer, "FT104", 1000, "BKG1042 382114")
	body["surprise"] = "field"
	resp, _ := postWebhook(t, server, body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing required fields too.
	resp, _ = postWebhook(t, server, map[string]any{"amount": 1000})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookStatusByOutcome(t *testing.T) {
	// Every pipeline outcome except a signature failure acknowledges with 200.
	for _, code := range []OutcomeCode{OutcomeNoPendingRequest, OutcomeExpiredRequest} {
		t.Run(string(code), func(t *testing.T) {
			server, _, requests, signer := newWebhookServer(t)
			switch code {
			case OutcomeExpiredRequest:
				addPendingRequest(requests, 7, 2_400_000, time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC))
			}

			resp, body := postWebhook(t, server, webhookBody(signer, "FT-"+string(code), 2_400_000, "BKG1042 382114"))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, string(code), body["outcome"])
		})
	}
}
