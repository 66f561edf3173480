// Package reservation implements the reservation-utilization
// reconciliation engine: classification of purchase and consumption
// records, correlation across the two loosely-linked families, and
// per-reservation utilization analysis.
package reservation

import (
	"regexp"
	"strconv"
)

// SizeToken is a parsed VM size: the family string as it appears in the
// product or serviceType field, and the provisioned core count.
type SizeToken struct {
	Family string
	Cores  int
}

// UnknownSize is returned for strings carrying no recognizable size token.
// Zero cores propagates to a guarded zero-denominator in the analyzer.
var UnknownSize = SizeToken{Family: "Unknown"}

var (
	familyPattern = regexp.MustCompile(`Standard_[A-Za-z0-9_]+`)
	// Core counts follow the digit-after-D convention (D2as_v5 = 2 cores).
	// Other letter prefixes are not handled; their tokens map to 0 cores.
	corePattern = regexp.MustCompile(`D(\d+)[A-Za-z]*_v\d+`)
)

// ParseSizeToken extracts a size token from free text such as
// "Standard_D8as_v5" or "Reserved VM Instance, Standard_D8as_v5, 1 Year".
func ParseSizeToken(s string) SizeToken {
	token := SizeToken{Family: familyPattern.FindString(s)}
	if m := corePattern.FindStringSubmatch(s); m != nil {
		cores, err := strconv.Atoi(m[1])
		if err == nil {
			token.Cores = cores
		}
		if token.Family == "" {
			token.Family = m[0]
		}
	}
	if token.Family == "" {
		return UnknownSize
	}
	return token
}
