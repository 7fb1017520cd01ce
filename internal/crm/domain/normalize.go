package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gosimple/slug"
)

// NormalizePhone strips everything but digits and folds the common
// international prefix back to local form, so "+66812345678" and
// "0812345678" compare equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "66") && len(digits) == 11 {
		digits = "0" + digits[2:]
	}
	return digits
}

// NormalizeEmail lower-cases and trims the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeName collapses internal whitespace and lower-cases the name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// StableHashID computes the deterministic fingerprint used as the join key
// between the local identity space and the CRM, independent of the CRM's
// internal id scheme. Computed locally whenever the CRM omits it.
func StableHashID(name, phone, email string) string {
	material := strings.Join([]string{
		slug.Make(NormalizeName(name)),
		NormalizePhone(phone),
		NormalizeEmail(email),
	}, "|")
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
