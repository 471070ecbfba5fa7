package validation

import (
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Pillar labels are upper snake case, e.g. DEFORESTATION or LIVING_INCOME.
var pillarRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,63}$`)

const maxExternalIDLen = 100

// IsValidExternalID accepts a non-blank printable identifier of at most 100 characters.
func IsValidExternalID(id string) bool {
	if strings.TrimSpace(id) == "" || len(id) > maxExternalIDLen {
		return false
	}
	for _, r := range id {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func IsValidPillar(p string) bool {
	return pillarRe.MatchString(p)
}

// IsValidFileURL requires an absolute http(s) URL with a host.
func IsValidFileURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidRadius accepts a finite, non-negative buffer in meters.
func IsValidRadius(m float64) bool {
	return !math.IsNaN(m) && !math.IsInf(m, 0) && m >= 0
}
