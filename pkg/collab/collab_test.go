package collab

import (
	"context"
	"errors"
	"testing"

	"autoninja/pkg/collab/collaberrors"
	"autoninja/pkg/config"
)

func TestCollectStream(t *testing.T) {
	ch := make(chan StreamChunk, 3)
	ch <- StreamChunk{Content: "hello "}
	ch <- StreamChunk{Content: "world"}
	ch <- StreamChunk{Done: true}
	close(ch)

	got, err := CollectStream(context.Background(), ch)
	if err != nil {
		t.Fatalf("CollectStream failed: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestCollectStreamError(t *testing.T) {
	wantErr := collaberrors.NewError(collaberrors.ErrorTypeTransient, "boom")
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Content: "partial"}
	ch <- StreamChunk{Error: wantErr}
	close(ch)

	got, err := CollectStream(context.Background(), ch)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if got != "partial" {
		t.Errorf("partial content = %q", got)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(
		NewMockCollaborator(config.CollabRequirementsAnalyst),
		NewMockCollaborator(config.CollabQualityValidator),
	)

	c, err := reg.Get(config.CollabRequirementsAnalyst)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if c.ID() != config.CollabRequirementsAnalyst {
		t.Errorf("id = %q", c.ID())
	}

	_, err = reg.Get("nonexistent-role")
	if !collaberrors.Is(err, collaberrors.ErrorTypeBadRequest) {
		t.Errorf("unknown collaborator err = %v, want bad_request", err)
	}

	ids := reg.IDs()
	if len(ids) != 2 || ids[0] != config.CollabQualityValidator {
		t.Errorf("ids = %v", ids)
	}
}

func TestMockScriptThenCanned(t *testing.T) {
	mock := NewMockCollaborator(config.CollabQualityValidator,
		MockResponse{Text: "first"},
	).ThrottledTimes(1)

	ctx := context.Background()

	// Scripted throttling failure first.
	ch, err := mock.Invoke(ctx, "job-1", "input")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if _, err := CollectStream(ctx, ch); !collaberrors.IsThrottling(err) {
		t.Fatalf("err = %v, want throttling", err)
	}

	// Then the scripted text.
	ch, _ = mock.Invoke(ctx, "job-1", "input")
	got, err := CollectStream(ctx, ch)
	if err != nil || got != "first" {
		t.Fatalf("got %q, %v", got, err)
	}

	// Script exhausted: canned role document.
	ch, _ = mock.Invoke(ctx, "job-1", "input")
	got, err = CollectStream(ctx, ch)
	if err != nil {
		t.Fatalf("canned invoke failed: %v", err)
	}
	if got == "" || got == "first" {
		t.Errorf("canned response = %q", got)
	}

	if mock.InvocationCount() != 3 {
		t.Errorf("invocations = %d", mock.InvocationCount())
	}
}

func TestRolePromptsCoverAllCollaborators(t *testing.T) {
	for _, id := range config.CollaboratorIDs() {
		if RolePrompt(id) == "" {
			t.Errorf("missing role prompt for %s", id)
		}
	}
	if RolePrompt("unknown") != "" {
		t.Error("unknown role should have empty prompt")
	}
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want collaberrors.ErrorType
	}{
		{"status 429", errors.New("request failed, status code: 429"), collaberrors.ErrorTypeThrottling},
		{"status 401", errors.New("request failed, status code: 401"), collaberrors.ErrorTypeAuth},
		{"status 400", errors.New("request failed, status code: 400"), collaberrors.ErrorTypeBadRequest},
		{"status 503", errors.New("request failed, status code: 503"), collaberrors.ErrorTypeTransient},
		{"throttling text", errors.New("throttlingException: slow down"), collaberrors.ErrorTypeThrottling},
		{"connection reset", errors.New("read tcp: connection reset by peer"), collaberrors.ErrorTypeTransient},
		{"deadline", context.DeadlineExceeded, collaberrors.ErrorTypeTransient},
		{"opaque", errors.New("something odd"), collaberrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyProviderError(tt.err)
			if got.Type != tt.want {
				t.Errorf("classify(%v) = %s, want %s", tt.err, got.Type, tt.want)
			}
		})
	}
}

func TestClassifyRetryability(t *testing.T) {
	throttled := classifyProviderError(errors.New("status code: 429"))
	if !throttled.IsRetryable() {
		t.Error("throttling must be retryable")
	}
	transient := classifyProviderError(errors.New("status code: 503"))
	if transient.IsRetryable() {
		t.Error("transient failures fail the attempt, not retried")
	}
}
