package policy

import (
	"net/url"
	"regexp"
)

var (
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)
	jwtPattern    = regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]*\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]*`)
	queryPattern  = regexp.MustCompile(`(?i)\b(token|access_token|apikey|api_key)=[^&\s"]+`)
)

// RedactSecrets masks bearer credentials, JWTs and credential query values.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	changed = changed || next != out
	out = next

	// Query values go before the bare JWT pass so the key survives.
	next = queryPattern.ReplaceAllString(out, "$1=[REDACTED]")
	changed = changed || next != out
	out = next

	next = jwtPattern.ReplaceAllString(out, "[REDACTED_JWT]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactQuery returns the encoded query with credential parameters masked.
func RedactQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	out, _ := RedactSecrets(q.Encode())
	return out
}
