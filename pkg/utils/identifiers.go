package utils

import "strings"

// SanitizeIdentifier makes an identifier safe for filesystem paths and object
// store keys. Colons show up in model-qualified collaborator ids
// (e.g. "quality-validator:claude-sonnet"), slashes in user-supplied job ids.
func SanitizeIdentifier(id string) string {
	sanitized := strings.ReplaceAll(id, ":", "-")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	return sanitized
}
