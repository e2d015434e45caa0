package validation

import "regexp"

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidPassword requires at least 6 characters.
func IsValidPassword(password string) bool {
	return len(password) >= 6
}

// IsValidUserType reports whether t is one of the platform roles.
func IsValidUserType(t string) bool {
	switch t {
	case "investor", "developer", "admin":
		return true
	}
	return false
}
