package payments

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// EMVCo merchant-presented QR payload for a PromptPay mobile-number transfer.
// Field layout follows the national spec: payload format 01, point-of-initiation
// 12 (dynamic, amount embedded), merchant account template 29 with the PromptPay
// AID, currency 764 (THB), country TH, CRC-16/CCITT-FALSE trailer.

const promptPayAID = "A000000677010111"

// QRPayload encodes a transfer of amount to the given Thai mobile number.
// The amount is clamped to >= 0 and rounded to 2 decimal places.
func QRPayload(phone string, amount decimal.Decimal) string {
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	amount = amount.Round(2)

	merchant := tlv("00", promptPayAID) + tlv("01", formatProxyPhone(phone))

	data := tlv("00", "01") +
		tlv("01", "12") +
		tlv("29", merchant) +
		tlv("53", "764") +
		tlv("54", amount.StringFixed(2)) +
		tlv("58", "TH") +
		"6304"

	return data + fmt.Sprintf("%04X", crc16(data))
}

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// formatProxyPhone converts a local mobile number ("0812345678") to the
// 13-digit proxy form the scheme expects: country code 66, leading zero
// dropped, zero-padded on the left.
func formatProxyPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "0066")
	if strings.HasPrefix(digits, "66") && len(digits) == 11 {
		// already in country-code form
	} else {
		digits = "66" + strings.TrimPrefix(digits, "0")
	}
	for len(digits) < 13 {
		digits = "0" + digits
	}
	return digits
}

// crc16 implements CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) over the
// payload bytes, as required by the EMVCo QR spec.
func crc16(s string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(s); i++ {
		crc ^= uint16(s[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
