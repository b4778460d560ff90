// Package internal provides helpers shared across the backend packages.
package internal

import (
	"regexp"
)

// EmailRegexTemplate is the regex used to validate email addresses.
const EmailRegexTemplate = `^[\w.\+\.\-]+@([\w\-]+\.)+[\w]{2,}$`

var emailRegex = regexp.MustCompile(EmailRegexTemplate)

// ValidEmail helper function allows to validate an email address.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
