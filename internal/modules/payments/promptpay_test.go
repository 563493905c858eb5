package payments

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestQRPayload(t *testing.T) {
	t.Run("payload carries the PromptPay AID and the proxy phone", func(t *testing.T) {
		payload := QRPayload("0812345678", decimal.NewFromFloat(199.50))

		if !strings.Contains(payload, promptPayAID) {
			t.Fatalf("payload missing AID: %s", payload)
		}
		if !strings.Contains(payload, "0066812345678") {
			t.Fatalf("payload missing 13-digit proxy phone: %s", payload)
		}
	})

	t.Run("amount is embedded with two decimal places", func(t *testing.T) {
		payload := QRPayload("0812345678", decimal.NewFromInt(250))

		if !strings.Contains(payload, "5406250.00") {
			t.Fatalf("expected tag 54 with 250.00, got %s", payload)
		}
	})

	t.Run("amount is rounded to two decimal places", func(t *testing.T) {
		payload := QRPayload("0812345678", decimal.RequireFromString("99.999"))

		if !strings.Contains(payload, "5406100.00") {
			t.Fatalf("expected 99.999 rounded to 100.00, got %s", payload)
		}
	})

	t.Run("negative amount is clamped to zero", func(t *testing.T) {
		payload := QRPayload("0812345678", decimal.NewFromInt(-5))

		if !strings.Contains(payload, "54040.00") {
			t.Fatalf("expected tag 54 with 0.00, got %s", payload)
		}
	})

	t.Run("payload ends with a valid CRC trailer", func(t *testing.T) {
		payload := QRPayload("0812345678", decimal.NewFromInt(100))

		idx := strings.LastIndex(payload, "6304")
		if idx < 0 || len(payload) != idx+8 {
			t.Fatalf("expected 6304 + 4 hex chars at end, got %s", payload)
		}

		body := payload[:idx+4]
		want := payload[idx+4:]
		got := fmtCRC(crc16(body))
		if got != want {
			t.Fatalf("crc mismatch: payload carries %s, recomputed %s", want, got)
		}
	})

	t.Run("identical input is deterministic", func(t *testing.T) {
		a := QRPayload("0899999999", decimal.NewFromInt(42))
		b := QRPayload("0899999999", decimal.NewFromInt(42))
		if a != b {
			t.Fatalf("payload not deterministic:\n%s\n%s", a, b)
		}
	})
}

func TestFormatProxyPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0812345678", "0066812345678"},
		{"66812345678", "0066812345678"},
		{"0066812345678", "0066812345678"},
		{"+66 81 234 5678", "0066812345678"},
		{"081-234-5678", "0066812345678"},
	}
	for _, tc := range cases {
		if got := formatProxyPhone(tc.in); got != tc.want {
			t.Errorf("formatProxyPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCRC16KnownVector(t *testing.T) {
	// CRC-16/CCITT-FALSE check value for "123456789"
	if got := crc16("123456789"); got != 0x29B1 {
		t.Fatalf("crc16(123456789) = %04X, want 29B1", got)
	}
}

func fmtCRC(v uint16) string {
	const hex = "0123456789ABCDEF"
	return string([]byte{
		hex[v>>12&0xF], hex[v>>8&0xF], hex[v>>4&0xF], hex[v&0xF],
	})
}
