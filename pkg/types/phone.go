package types

import "regexp"

var phonePattern = regexp.MustCompile(`^[\d\s\-+()]+$`)

// ValidPhone reports whether s only contains digits, spaces and + - ( ).
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}
