package callfsm

import "regexp"

// dtmfRe is the exact DTMF-string grammar the dispatcher forwards from PVP
// text messages to SSP: 1 to 32 uppercase hex-DTMF characters.
var dtmfRe = regexp.MustCompile(`^[0-9A-D*#]{1,32}$`)

// IsDtmfString reports whether text is a legal DTMF string.
func IsDtmfString(text string) bool {
	return dtmfRe.MatchString(text)
}

// ExtensionKind identifies how an SSP extension should be resolved to a PVP
// user, per the grammar in spec §6: ("tg#" username) | ("+" digits) | digits.
type ExtensionKind int

const (
	ExtensionInvalid ExtensionKind = iota
	ExtensionUsername
	ExtensionPhone
	ExtensionUserID
)

var (
	allDigitsRe = regexp.MustCompile(`^[0-9]+$`)
)

// ParseExtension classifies an SSP extension string and extracts its value.
// For ExtensionUserID, value holds the decimal digits (the caller parses
// them as an int64); for the others, value holds the username or phone
// digits with any leading sigil stripped.
func ParseExtension(ext string) (kind ExtensionKind, value string) {
	switch {
	case len(ext) > 3 && ext[:3] == "tg#":
		name := ext[3:]
		if name == "" {
			return ExtensionInvalid, ""
		}
		return ExtensionUsername, name
	case len(ext) > 1 && ext[0] == '+':
		digits := ext[1:]
		if !allDigitsRe.MatchString(digits) {
			return ExtensionInvalid, ""
		}
		return ExtensionPhone, digits
	case allDigitsRe.MatchString(ext):
		return ExtensionUserID, ext
	default:
		return ExtensionInvalid, ""
	}
}
