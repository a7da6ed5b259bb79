package extract

import (
	"errors"
	"strings"
	"testing"

	"autoninja/pkg/collab/collaberrors"
)

func TestExtractLabeledFence(t *testing.T) {
	text := "Here is the analysis:\n```json\n{\"is_valid\": true, \"score\": 9}\n```\nLet me know."
	res, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	obj, ok := res.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload is %T, want object", res.Payload)
	}
	if obj["is_valid"] != true {
		t.Errorf("is_valid = %v", obj["is_valid"])
	}
	if res.Repaired {
		t.Error("clean fence should not be marked repaired")
	}
}

func TestExtractUnclosedFence(t *testing.T) {
	text := "```json\n{\"requirements\": [\"auth\", \"storage\"]}"
	res, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	obj := res.Payload.(map[string]any)
	reqs, ok := obj["requirements"].([]any)
	if !ok || len(reqs) != 2 {
		t.Errorf("requirements = %v", obj["requirements"])
	}
}

func TestExtractUnlabeledFence(t *testing.T) {
	text := "Result:\n```\n{\"name\": \"demo\"}\n```"
	res, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if res.Payload.(map[string]any)["name"] != "demo" {
		t.Errorf("payload = %v", res.Payload)
	}
}

func TestExtractBareJSON(t *testing.T) {
	res, err := Extract(`  {"a": 1}  `)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if res.Raw != `{"a": 1}` {
		t.Errorf("raw = %q", res.Raw)
	}
}

func TestExtractArrayPayload(t *testing.T) {
	res, err := Extract("```json\n[{\"step\": 1}, {\"step\": 2}]\n```")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	arr, ok := res.Payload.([]any)
	if !ok || len(arr) != 2 {
		t.Fatalf("payload = %v", res.Payload)
	}
}

func TestExtractMissingOpeningBrace(t *testing.T) {
	// Stream that lost its first byte.
	res, err := Extract(`"is_valid": false, "issues": ["missing tests"]}`)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !res.Repaired {
		t.Error("brace-patched payload should be marked repaired")
	}
	if res.Payload.(map[string]any)["is_valid"] != false {
		t.Errorf("payload = %v", res.Payload)
	}
}

func TestExtractMissingClosingBrace(t *testing.T) {
	res, err := Extract(`{"code": "package main"`)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !res.Repaired {
		t.Error("brace-patched payload should be marked repaired")
	}
	if res.Payload.(map[string]any)["code"] != "package main" {
		t.Errorf("payload = %v", res.Payload)
	}
}

func TestExtractMissingComma(t *testing.T) {
	text := "```json\n{\"name\": \"svc\"\n\"lang\": \"go\"}\n```"
	res, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !res.Repaired {
		t.Error("comma-repaired payload should be marked repaired")
	}
	obj := res.Payload.(map[string]any)
	if obj["name"] != "svc" || obj["lang"] != "go" {
		t.Errorf("payload = %v", obj)
	}
}

func TestExtractPrefersLabeledFenceOverProse(t *testing.T) {
	text := "The config {not json} looks like:\n```json\n{\"ok\": true}\n```"
	res, err := Extract(text)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if res.Payload.(map[string]any)["ok"] != true {
		t.Errorf("payload = %v", res.Payload)
	}
}

func TestExtractRejectsScalars(t *testing.T) {
	// A bare number decodes as JSON but is prose, not a payload.
	if _, err := Extract("42"); err == nil {
		t.Fatal("scalar text should not extract")
	}
}

func TestExtractFailureClassification(t *testing.T) {
	longText := "I could not produce the document. " + strings.Repeat("x", 600)
	_, err := Extract(longText)
	if err == nil {
		t.Fatal("expected parse error")
	}
	var cerr *collaberrors.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("error is %T, want *collaberrors.Error", err)
	}
	if cerr.Type != collaberrors.ErrorTypeParse {
		t.Errorf("type = %s, want parse", cerr.Type)
	}
	if len(cerr.BodyStub) != 500 {
		t.Errorf("body stub length = %d, want 500", len(cerr.BodyStub))
	}
}

func TestExtractInto(t *testing.T) {
	type verdict struct {
		IsValid bool     `json:"is_valid"`
		Issues  []string `json:"issues"`
	}
	var v verdict
	err := ExtractInto("```json\n{\"is_valid\": true, \"issues\": []}\n```", &v)
	if err != nil {
		t.Fatalf("ExtractInto failed: %v", err)
	}
	if !v.IsValid {
		t.Error("is_valid not decoded")
	}
}
