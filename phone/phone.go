// Package phone normalizes Brazilian WhatsApp numbers between the 55-prefixed
// digit form persisted on records and the "+55 (DD) XXXXX-XXXX" mask shown to
// admins.
package phone

import (
	"fmt"
	"regexp"
	"strings"

	"pedraum/textutil"
)

var valid55 = regexp.MustCompile(`^55\d{10,11}$`)

// NormalizeBR reduces arbitrary input (masked, with country code, with junk
// prefixes) to canonical 55-prefixed digits, or "" when no valid BR mobile or
// landline number can be recovered.
func NormalizeBR(raw string) string {
	d := textutil.OnlyDigits(raw)
	if d == "" {
		return ""
	}
	d = strings.TrimLeft(d, "0")
	if strings.HasPrefix(d, "55555") {
		d = d[2:]
	}
	if strings.HasPrefix(d, "55") {
		rest := d[2:]
		if len(rest) > 11 {
			rest = rest[:11]
		}
		if len(rest) != 10 && len(rest) != 11 {
			return ""
		}
		return "55" + rest
	}
	if len(d) == 10 || len(d) == 11 {
		return "55" + d
	}
	if len(d) > 11 {
		return "55" + d[len(d)-11:]
	}
	return ""
}

// Mask55 renders 55-prefixed digits as the international display mask.
func Mask55(d55 string) string {
	if !strings.HasPrefix(d55, "55") || len(d55) < 4 {
		return ""
	}
	ddd := d55[2:4]
	core := d55[4:]
	switch len(core) {
	case 8:
		return fmt.Sprintf("+55 (%s) %s-%s", ddd, core[:4], core[4:])
	case 9:
		return fmt.Sprintf("+55 (%s) %s-%s", ddd, core[:5], core[5:])
	default:
		return fmt.Sprintf("+55 (%s) %s", ddd, core)
	}
}

// IsValid55 reports whether the digits form a valid BR number: the 55 country
// code, a two-digit DDD and an 8 or 9 digit local part.
func IsValid55(d55 string) bool {
	return valid55.MatchString(d55)
}

// EnsurePlus55 prefixes the display form with +55 when the user typed a bare
// local number.
func EnsurePlus55(masked string) string {
	t := strings.TrimSpace(masked)
	if strings.HasPrefix(t, "+55") {
		return t
	}
	return "+55 " + strings.TrimPrefix(t, "+")
}

// FormatIntl best-effort formats any input as the international mask, falling
// back to a +55 prefix when the digits cannot be normalized.
func FormatIntl(input string) string {
	if d := NormalizeBR(input); d != "" {
		return Mask55(d)
	}
	return EnsurePlus55(input)
}
