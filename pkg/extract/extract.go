// Package extract recovers structured JSON payloads from collaborator
// response text. Hosted models wrap JSON in markdown fences, chop off
// braces mid-stream, or drop commas between fields; the extractor tries a
// sequence of increasingly forgiving strategies before giving up.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"autoninja/pkg/collab/collaberrors"
	"autoninja/pkg/logx"
)

//nolint:gochecknoglobals // Compiled once
var (
	// ```json ... ``` with the closing fence present.
	labeledFence = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	// ```json ... with no closing fence (stream cut off).
	unclosedFence = regexp.MustCompile("(?s)```json\\s*(.*)$")
	// Any fenced block; candidates are filtered to those that look like JSON.
	anyFence = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9]*)?\\s*(.*?)```")
	// A string-valued field followed by a newline and another key with no
	// comma in between. The common single-defect output of long generations.
	missingComma = regexp.MustCompile(`([}\]"])\s*\n(\s*")`)
)

// Result holds a successfully recovered payload.
type Result struct {
	// Payload is the decoded JSON object or array.
	Payload any
	// Raw is the JSON text that decoded successfully, after any repairs.
	Raw string
	// Repaired reports whether the text needed brace patching or comma
	// insertion before it parsed.
	Repaired bool
}

// Extract recovers a JSON payload from response text.
//
// Strategies, in order:
//  1. labeled ```json fence
//  2. unclosed ```json fence
//  3. any fenced block whose body starts with { or [
//  4. the whole text, with brace patching for truncated objects
//  5. missing-comma repair on the best candidate, retried once
//
// Returns a parse-classified error carrying a stub of the original text when
// nothing recovers.
func Extract(text string) (*Result, error) {
	logger := logx.NewLogger("extract")

	candidates := collectCandidates(text)
	for _, cand := range candidates {
		if res, ok := tryDecode(cand); ok {
			return res, nil
		}
	}

	// Comma repair pass over the same candidates.
	for _, cand := range candidates {
		repaired := missingComma.ReplaceAllString(cand, "$1,\n$2")
		if repaired == cand {
			continue
		}
		if res, ok := tryDecode(repaired); ok {
			logger.Debug("recovered payload after missing-comma repair")
			res.Repaired = true
			return res, nil
		}
	}

	logger.Warn("failed to extract JSON payload from response (%d bytes)", len(text))
	return nil, collaberrors.NewParseError(
		collaberrors.NewError(collaberrors.ErrorTypeParse, "no decodable JSON found"),
		text,
	)
}

// ExtractInto recovers a payload and decodes it into v.
func ExtractInto(text string, v any) error {
	res, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(res.Raw), v); err != nil {
		return collaberrors.NewParseError(err, res.Raw)
	}
	return nil
}

// collectCandidates orders candidate JSON texts from most to least specific.
func collectCandidates(text string) []string {
	var candidates []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			candidates = append(candidates, s)
		}
	}

	if m := labeledFence.FindStringSubmatch(text); m != nil {
		add(m[1])
	}
	if m := unclosedFence.FindStringSubmatch(text); m != nil {
		add(m[1])
	}
	for _, m := range anyFence.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			add(body)
		}
	}

	whole := strings.TrimSpace(text)
	add(whole)
	add(patchBraces(whole))
	return candidates
}

// patchBraces repairs objects whose opening or closing brace was cut off.
// Text starting with a quoted key gets an opening brace prepended; text that
// opens an object but never closes it gets a closing brace appended.
func patchBraces(s string) string {
	if strings.HasPrefix(s, `"`) && !strings.HasPrefix(s, `{"`) {
		s = "{" + s
	}
	if strings.HasPrefix(s, "{") && !strings.HasSuffix(s, "}") {
		s = s + "}"
	}
	return s
}

func tryDecode(s string) (*Result, bool) {
	attempts := []string{s}
	if patched := patchBraces(s); patched != s {
		attempts = append(attempts, patched)
	}
	for i, attempt := range attempts {
		var payload any
		dec := json.NewDecoder(strings.NewReader(attempt))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			continue
		}
		// Only objects and arrays count: a bare string or number means we
		// grabbed prose, not a payload.
		switch payload.(type) {
		case map[string]any, []any:
			return &Result{Payload: payload, Raw: attempt, Repaired: i > 0}, true
		}
	}
	return nil, false
}
