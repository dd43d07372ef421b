package qr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// ImageClient wraps the external QR-image provider. Calls are bounded by the
// client timeout; a failure is an ExternalServiceError and nothing gets
// persisted for the request.
type ImageClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewImageClient constructs a client with a bounded timeout.
func NewImageClient(baseURL string, timeout time.Duration) *ImageClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ImageClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type imageRequest struct {
	Amount        int64  `json:"amount"`
	Narration     string `json:"narration"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
}

type imageResponse struct {
	ImageURL string `json:"image_url"`
}

// Generate requests a scannable transfer image for the narration and amount.
func (c *ImageClient) Generate(ctx context.Context, amount int64, narration, bankCode, accountNumber string) (string, error) {
	payload, err := json.Marshal(imageRequest{
		Amount:        amount,
		Narration:     narration,
		BankCode:      bankCode,
		AccountNumber: accountNumber,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/images", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("qr image provider: %s: %w", err, httpx.ErrExternalService)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("qr image provider returned status %d: %w", resp.StatusCode, httpx.ErrExternalService)
	}

	var out imageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("qr image provider: decode response: %w", httpx.ErrExternalService)
	}
	if out.ImageURL == "" {
		return "", fmt.Errorf("qr image provider returned empty image reference: %w", httpx.ErrExternalService)
	}
	return out.ImageURL, nil
}
