package utils

import "regexp"

var digitRun = regexp.MustCompile(`\d+`)

// IDsMatch reports whether two identifiers refer to the same entity.
// Remote records encode technician ids inconsistently ("admin-22" in one
// field, "22" in another), so exact equality is tried first and then the
// first numeric run of each side is compared.
func IDsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	na := digitRun.FindString(a)
	nb := digitRun.FindString(b)
	return na != "" && na == nb
}

// NumericPart returns the first digit run of an id, or "" when the id
// carries none.
func NumericPart(id string) string {
	return digitRun.FindString(id)
}
