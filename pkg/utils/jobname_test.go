package utils

import (
	"testing"
	"time"
)

func TestGenerateJobNameAt(t *testing.T) {
	at := time.Date(2025, 1, 15, 14, 30, 22, 0, time.UTC)

	tests := []struct {
		name    string
		request string
		want    string
	}{
		{
			name:    "skips stop words",
			request: "I would like a friend agent",
			want:    "job-friend-20250115-143022",
		},
		{
			name:    "test request",
			request: "Build a test agent",
			want:    "job-test-20250115-143022",
		},
		{
			name:    "no meaningful word falls back to agent",
			request: "a an the",
			want:    "job-agent-20250115-143022",
		},
		{
			name:    "empty request",
			request: "",
			want:    "job-agent-20250115-143022",
		},
		{
			name:    "short words are skipped",
			request: "an ox agent",
			want:    "job-agent-20250115-143022",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateJobNameAt(tt.request, at)
			if got != tt.want {
				t.Errorf("GenerateJobNameAt(%q) = %q, want %q", tt.request, got, tt.want)
			}
		})
	}
}

func TestGenerateJobNameAtNonUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	at := time.Date(2025, 1, 15, 16, 30, 22, 0, loc)
	got := GenerateJobNameAt("friend bot", at)
	if got != "job-friend-20250115-143022" {
		t.Errorf("timestamp should be UTC, got %q", got)
	}
}

func TestNormalizeKeyword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Friend", "friend"},
		{"customer support", "customer-support"},
		{"hello_world", "hello-world"},
		{"we--ird---name", "we-ird-name"},
		{"!!!", "agent"},
		{"averyveryverylongkeywordindeed", "averyveryverylongkey"},
		{"-trimmed-", "trimmed"},
	}
	for _, tt := range tests {
		if got := NormalizeKeyword(tt.in); got != tt.want {
			t.Errorf("NormalizeKeyword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseJobName(t *testing.T) {
	parts, err := ParseJobName("job-friend-20250115-143022")
	if err != nil {
		t.Fatalf("ParseJobName failed: %v", err)
	}
	if parts.Keyword != "friend" {
		t.Errorf("keyword = %q", parts.Keyword)
	}
	if parts.Date != "20250115" || parts.Time != "143022" {
		t.Errorf("date/time = %q/%q", parts.Date, parts.Time)
	}
	if parts.Timestamp != "20250115-143022" {
		t.Errorf("timestamp = %q", parts.Timestamp)
	}

	if _, err := ParseJobName("not-a-job-name"); err == nil {
		t.Error("invalid name should fail to parse")
	}
}

func TestIsValidJobName(t *testing.T) {
	if !IsValidJobName("job-friend-20250115-143022") {
		t.Error("valid job name rejected")
	}
	if IsValidJobName("job-Friend-20250115-143022") {
		t.Error("uppercase keyword should be invalid")
	}
	if IsValidJobName("job-friend-2025-143022") {
		t.Error("short date should be invalid")
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	if got := SanitizeIdentifier("quality-validator:claude"); got != "quality-validator-claude" {
		t.Errorf("got %q", got)
	}
	if got := SanitizeIdentifier("a b/c\\d"); got != "a-b-c-d" {
		t.Errorf("got %q", got)
	}
}
