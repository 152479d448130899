package grading

import (
	"regexp"
	"strings"
)

// SubmissionType classifies extracted submission text.
type SubmissionType string

// Submission types recognised from the markers submission sources emit.
const (
	SubmissionFileUpload SubmissionType = "File Upload"
	SubmissionOnlineText SubmissionType = "Online Text"
	SubmissionNone       SubmissionType = "No Submission"
	SubmissionMinimal    SubmissionType = "Minimal Content"
	SubmissionText       SubmissionType = "Text Content"
)

const (
	fileMarker       = "--- File:"
	onlineTextMarker = "--- Online Text"
	missingMarker    = "[No submission content found"
)

// extractionFailures are the inline markers left where a file could not be
// read.
var extractionFailures = []string{
	"[Could not extract content from this file]",
	"[Unsupported file type:",
	"[DOCX file found but no readable text",
}

var (
	fileNameRe   = regexp.MustCompile(`--- File: ([^-\n]+) ---`)
	fileHeaderRe = regexp.MustCompile(`--- File: [^-\n]+ ---\n`)
	bracketedRe  = regexp.MustCompile(`^\[.*\]$`)
)

// SubmissionInfo describes what the submission text contains.
type SubmissionInfo struct {
	Type       SubmissionType
	Files      []string
	HasContent bool
	// Missing is set when the source reported no submission at all.
	Missing bool
}

// AnalyzeSubmission inspects extracted text. Bracketed markers are treated
// as literal text; they only influence whether readable content exists.
func AnalyzeSubmission(content string) SubmissionInfo {
	info := SubmissionInfo{Missing: strings.Contains(content, missingMarker)}
	trimmed := strings.TrimSpace(content)

	switch {
	case strings.Contains(content, fileMarker):
		info.Type = SubmissionFileUpload
		for _, m := range fileNameRe.FindAllStringSubmatch(content, -1) {
			info.Files = append(info.Files, strings.TrimSpace(m[1]))
		}
		clean := fileHeaderRe.ReplaceAllString(content, "")
		for _, marker := range extractionFailures {
			clean = strings.ReplaceAll(clean, marker, "")
		}
		clean = strings.TrimSpace(clean)
		info.HasContent = len(clean) > 10 && !bracketedRe.MatchString(clean)

	case strings.Contains(content, onlineTextMarker):
		info.Type = SubmissionOnlineText
		info.HasContent = len(trimmed) > 50

	case info.Missing:
		info.Type = SubmissionNone

	case len(trimmed) < 20:
		info.Type = SubmissionMinimal

	default:
		info.Type = SubmissionText
		info.HasContent = true
	}
	return info
}
