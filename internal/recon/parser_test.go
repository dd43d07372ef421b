package recon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeNarration(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "uppercases", in: "bkg1042 382114 thanh toan", want: "BKG1042 382114 THANH TOAN"},
		{name: "collapses whitespace", in: "  BKG1042   382114\t tien phong ", want: "BKG1042 382114 TIEN PHONG"},
		{name: "strips diacritics", in: "BKG1042 382114 tiền phòng", want: "BKG1042 382114 TIEN PHONG"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NormalizeNarration(tt.in))
		})
	}
}

func TestParseCodes(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		invoice string
		random  string
		ok      bool
	}{
		{name: "plain pair", in: "BKG1042 382114", invoice: "BKG1042", random: "382114", ok: true},
		{name: "pair inside sentence", in: "chuyen khoan BKG1042 382114 tien phong", invoice: "BKG1042", random: "382114", ok: true},
		{name: "lowercase with diacritics", in: "thanh toán bkg1042 382114", invoice: "BKG1042", random: "382114", ok: true},
		{name: "no codes at all", in: "no codes here", ok: false},
		{name: "empty narration", ok: false},
		{name: "five digit token", in: "BKG1042 38211", ok: false},
		{name: "seven digit token", in: "BKG1042 3821145", ok: false},
		{name: "numeric invoice token rejected", in: "1042 382114", ok: false},
		{name: "invoice code too short", in: "BK 382114", ok: false},
		{name: "first valid pair wins", in: "BKG1042 382114 BKG9999 111111", invoice: "BKG1042", random: "382114", ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoice, random, ok := ParseCodes(tt.in)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.invoice, invoice)
				require.Equal(t, tt.random, random)
			}
		})
	}
}

func TestSignerRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret")
	n := Notification{
		ExternalID: "FT2026001",
		Amount:     2_400_000,
		Narration:  "BKG1042 382114",
	}
	n.Signature = signer.Sign(n)
	require.NoError(t, signer.Verify(n))

	// Case and padding on the incoming signature are forgiven.
	n.Signature = "  " + n.Signature + "  "
	require.NoError(t, signer.Verify(n))

	n.Signature = signer.Sign(n)[:10] + "0000000000"
	require.Error(t, signer.Verify(n))

	other := NewSigner("other-secret")
	n.Signature = other.Sign(n)
	require.Error(t, signer.Verify(n))
}

func TestSignerCoversAmount(t *testing.T) {
	signer := NewSigner("test-secret")
	n := Notification{ExternalID: "FT2026002", Amount: 100, Narration: "BKG1 222333"}
	n.Signature = signer.Sign(n)

	n.Amount = 200
	require.Error(t, signer.Verify(n))
}
