package grading

import "regexp"

// RedactedMarker replaces personal identifiers removed by Anonymize.
const RedactedMarker = "[REDACTED]"

// identifierPatterns are applied in order.
var identifierPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Student (Name|ID):?\s*[^\n]+`),
	regexp.MustCompile(`(?i)Name:?\s*[^\n]+`),
	regexp.MustCompile(`(?i)ID Number:?\s*\d+`),
	regexp.MustCompile(`(?i)Matric(ulation)? (Number|No\.?):?\s*\d+`),
}

// Anonymize redacts student names and identification numbers that students
// commonly put at the top of their work.
func Anonymize(content string) string {
	for _, re := range identifierPatterns {
		content = re.ReplaceAllLiteralString(content, RedactedMarker)
	}
	return content
}
