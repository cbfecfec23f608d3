package routing

import "regexp"

// Case identifiers are PREFIX-YYYYMMDD-XXXXXXXX. The surrounding groups stop
// a longer alphanumeric run from yielding a truncated identifier.
var (
	changeRequestIDPattern    = regexp.MustCompile(`(?i)(?:^|[^0-9A-Za-z])(DCR-[0-9]{8}-[0-9A-F]{8})(?:$|[^0-9A-Za-z])`)
	correctiveActionIDPattern = regexp.MustCompile(`(?i)(?:^|[^0-9A-Za-z])(CAPA-[0-9]{8}-[0-9A-F]{8})(?:$|[^0-9A-Za-z])`)
	emailPattern              = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// ExtractChangeRequestID returns the first change request identifier in
// text, in the casing it was written, or "".
func ExtractChangeRequestID(text string) string {
	return firstGroup(changeRequestIDPattern, text)
}

// ExtractCorrectiveActionID returns the first corrective action identifier
// in text, in the casing it was written, or "".
func ExtractCorrectiveActionID(text string) string {
	return firstGroup(correctiveActionIDPattern, text)
}

// ExtractEmails returns every email address in order of appearance.
// Duplicates are kept. The result is never nil.
func ExtractEmails(text string) []string {
	found := emailPattern.FindAllString(text, -1)
	if found == nil {
		return []string{}
	}
	return found
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
