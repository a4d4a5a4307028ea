package processing

import (
	"regexp"
	"strings"
)

// DefaultMaxSteps caps the number of plan steps returned to clients.
const DefaultMaxSteps = 14

// stepMarker matches a leading enumeration such as "1.", "2)", "(3)", "4 -" or "5:".
var stepMarker = regexp.MustCompile(`^\(?\d+\)?\s*[.)\-:]\s*`)

// ParseSteps converts free-text model output into at most DefaultMaxSteps
// plain steps. See ParseStepsN.
func ParseSteps(text string) []string {
	return ParseStepsN(text, DefaultMaxSteps)
}

// ParseStepsN splits text into trimmed lines, strips a leading enumeration
// marker from each, drops blank lines and keeps the first max entries in
// order. Lines without a marker are kept as-is. The result is never nil.
func ParseStepsN(text string, max int) []string {
	steps := []string{}
	if max <= 0 {
		return steps
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimSpace(stepMarker.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		steps = append(steps, line)
		if len(steps) == max {
			break
		}
	}
	return steps
}
