// Package utils provides job naming, identifier, and token counting helpers.
package utils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Job names look like job-{keyword}-{YYYYMMDD-HHMMSS}. Two requests with the
// same keyword in the same second collide; callers that need stronger
// uniqueness must supply their own job id.

const (
	fallbackKeyword  = "agent"
	maxKeywordLength = 20
)

//nolint:gochecknoglobals // Fixed stop-word set shared by all calls
var skipWords = map[string]bool{
	"i": true, "want": true, "need": true, "would": true, "like": true,
	"create": true, "build": true, "make": true, "generate": true,
	"develop": true, "design": true, "implement": true,
	"a": true, "an": true, "the": true, "to": true, "for": true,
	"with": true, "that": true, "can": true, "could": true,
	"should": true, "will": true,
	"agent": true, "system": true, "application": true, "app": true,
	"service": true, "tool": true,
}

//nolint:gochecknoglobals // Compiled once
var (
	wordPattern    = regexp.MustCompile(`[a-zA-Z]+`)
	keywordStrip   = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenCollapse = regexp.MustCompile(`-+`)
	jobNamePattern = regexp.MustCompile(`^job-([a-z0-9-]+)-(\d{8})-(\d{6})$`)
)

// GenerateJobName derives a human-readable job name from a request at the
// current UTC time.
func GenerateJobName(request string) string {
	return GenerateJobNameAt(request, time.Now().UTC())
}

// GenerateJobNameAt derives a job name using an explicit timestamp.
// The timestamp is truncated to second resolution in UTC.
func GenerateJobNameAt(request string, now time.Time) string {
	keyword := NormalizeKeyword(ExtractKeyword(request))
	timestamp := now.UTC().Format("20060102-150405")
	return fmt.Sprintf("job-%s-%s", keyword, timestamp)
}

// ExtractKeyword picks the first meaningful word from the request: the first
// token of length >= 3 that is not in the stop-word set. Falls back to
// "agent" when nothing qualifies.
func ExtractKeyword(request string) string {
	words := wordPattern.FindAllString(strings.ToLower(request), -1)
	for _, word := range words {
		if !skipWords[word] && len(word) >= 3 {
			if len(word) > maxKeywordLength {
				return word[:maxKeywordLength]
			}
			return word
		}
	}
	return fallbackKeyword
}

// NormalizeKeyword makes a keyword safe for job names: lowercase, hyphens for
// whitespace and underscores, only [a-z0-9-], at most 20 characters.
func NormalizeKeyword(keyword string) string {
	keyword = strings.ToLower(keyword)
	keyword = strings.NewReplacer(" ", "-", "_", "-", "\t", "-").Replace(keyword)
	keyword = keywordStrip.ReplaceAllString(keyword, "")
	keyword = hyphenCollapse.ReplaceAllString(keyword, "-")
	keyword = strings.Trim(keyword, "-")

	if len(keyword) > maxKeywordLength {
		keyword = strings.TrimRight(keyword[:maxKeywordLength], "-")
	}
	if keyword == "" {
		keyword = fallbackKeyword
	}
	return keyword
}

// JobNameParts holds the components of a parsed job name.
type JobNameParts struct {
	Keyword   string
	Date      string
	Time      string
	Timestamp string
}

// ParseJobName splits a job name into its components.
func ParseJobName(jobName string) (JobNameParts, error) {
	match := jobNamePattern.FindStringSubmatch(jobName)
	if match == nil {
		return JobNameParts{}, fmt.Errorf("invalid job name format: %s", jobName)
	}
	return JobNameParts{
		Keyword:   match[1],
		Date:      match[2],
		Time:      match[3],
		Timestamp: match[2] + "-" + match[3],
	}, nil
}

// IsValidJobName reports whether a string is a well-formed job name.
func IsValidJobName(jobName string) bool {
	return jobNamePattern.MatchString(jobName)
}
