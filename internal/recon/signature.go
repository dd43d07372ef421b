package recon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Signer computes and verifies the authenticity token of inbound
// notifications: HMAC-SHA256 over the canonical payload with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner constructs a Signer.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// canonical builds the string the provider signs: pipe-joined external id,
// amount, narration and transfer timestamp (unix seconds).
func canonical(n Notification) string {
	return strings.Join([]string{
		n.ExternalID,
		strconv.FormatInt(n.Amount, 10),
		n.Narration,
		strconv.FormatInt(n.TransferredAt.Unix(), 10),
	}, "|")
}

// Sign returns the hex-encoded signature for a notification.
func (s *Signer) Sign(n Notification) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(canonical(n)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the notification's signature in constant time.
func (s *Signer) Verify(n Notification) error {
	want := s.Sign(n)
	got := strings.ToLower(strings.TrimSpace(n.Signature))
	if !hmac.Equal([]byte(want), []byte(got)) {
		return fmt.Errorf("recon: signature mismatch for %s", n.ExternalID)
	}
	return nil
}
