package logger

import "strings"

// RedactEmail masks a respondent address for safe logging.
// "john.doe@example.com" becomes "jo***@example.com". Local parts of
// two characters or fewer are fully masked, and anything that does not
// look like an address collapses to "***@***".
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
