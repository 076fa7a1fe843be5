// Package phone holds the deterministic phone normalization used to key
// conversations and to generate tenant-directory lookup variants. It is a
// best-effort E.164 canonicalizer: bare 10-digit numbers are assumed to be
// NANP and get a +1 prefix. The policy is intentionally simple so the same
// input always yields the same canonical form.
package phone

import "strings"

// Normalize returns the original input plus its canonical form. The
// canonical form is "" when the input has no digits at all.
func Normalize(raw string) (original, canonical string) {
	if raw == "" {
		return "", ""
	}
	return raw, ToE164(raw)
}

// ToE164 returns the best-effort E.164 representation, or "" when the input
// contains no digits.
func ToE164(raw string) string {
	digits := DigitsOnly(raw)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "+") {
		return "+" + digits
	}
	// Assume NANP country code for bare 10-digit numbers.
	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}

// DigitsOnly strips everything but digits.
func DigitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CountryStripped returns the national significant number as digits: for
// inputs that look like +1 plus ten digits the leading 1 is dropped,
// otherwise the digits are returned as-is.
func CountryStripped(raw string) string {
	digits := DigitsOnly(raw)
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "+") && len(digits) > 10 && strings.HasPrefix(digits, "1") {
		return digits[1:]
	}
	return digits
}

// Variants produces the ordered candidate forms tried against the tenant
// directory: raw, E.164, country-stripped, digits-only. Duplicates are
// removed while preserving first-seen order.
func Variants(raw string) []string {
	if raw == "" {
		return nil
	}
	seen := make(map[string]struct{}, 4)
	out := make([]string, 0, 4)
	for _, v := range []string{raw, ToE164(raw), CountryStripped(raw), DigitsOnly(raw)} {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
