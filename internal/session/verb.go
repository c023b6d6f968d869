package session

import "strings"

// Verb is a recognised FTP control command.
type Verb uint8

const (
	VerbUnknown Verb = iota
	VerbUSER
	VerbPASS
	VerbPWD
	VerbLIST
	VerbCWD
	VerbMKD
	VerbRMD
	VerbQUIT
	VerbSTAT
	VerbHELP

	numVerbs
)

var verbNames = [numVerbs]string{
	VerbUnknown: "",
	VerbUSER:    "USER",
	VerbPASS:    "PASS",
	VerbPWD:     "PWD",
	VerbLIST:    "LIST",
	VerbCWD:     "CWD",
	VerbMKD:     "MKD",
	VerbRMD:     "RMD",
	VerbQUIT:    "QUIT",
	VerbSTAT:    "STAT",
	VerbHELP:    "HELP",
}

// ParseVerb maps a token to its Verb, ignoring case.  Anything not in
// the supported set yields VerbUnknown.
func ParseVerb(tok string) Verb {
	if tok == "" {
		return VerbUnknown
	}
	up := strings.ToUpper(tok)
	for v := VerbUSER; v < numVerbs; v++ {
		if verbNames[v] == up {
			return v
		}
	}
	return VerbUnknown
}

func (v Verb) String() string {
	if v < numVerbs && v != VerbUnknown {
		return verbNames[v]
	}
	return "UNKNOWN"
}

// SupportedVerbs returns the verbs in HELP order.
func SupportedVerbs() []Verb {
	out := make([]Verb, 0, numVerbs-1)
	for v := VerbUSER; v < numVerbs; v++ {
		out = append(out, v)
	}
	return out
}
