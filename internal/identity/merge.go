package identity

import "strings"

// DefaultPhonePrefix is prepended to bare 10-digit numbers from the identity
// service.
const DefaultPhonePrefix = "+91"

// Field names reported in Resolution.Filled.
const (
	FieldExternalID = "external_id"
	FieldPhone      = "phone_number"
	FieldEmail      = "email"
)

// Profile is the part of a contact enrichment may fill.
type Profile struct {
	Phone string
	Email string
}

// MergeMissing fills blank fields of existing from incoming. Populated fields
// are never overwritten. It returns the merged profile and the filled fields.
func MergeMissing(existing, incoming Profile) (Profile, []string) {
	out := existing
	var filled []string
	if isBlank(out.Phone) && !isBlank(incoming.Phone) {
		out.Phone = incoming.Phone
		filled = append(filled, FieldPhone)
	}
	if isBlank(out.Email) && !isBlank(incoming.Email) {
		out.Email = incoming.Email
		filled = append(filled, FieldEmail)
	}
	return out, filled
}

// NormalizePhone prefixes a bare 10-digit number with prefix. Anything else
// is returned unchanged.
func NormalizePhone(phone, prefix string) string {
	if len(phone) != 10 || !allDigits(phone) {
		return phone
	}
	return prefix + phone
}

// LastDigits returns the last n digits of phone, ignoring formatting, so
// lookups match regardless of country code.
func LastDigits(phone string, n int) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
