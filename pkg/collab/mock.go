package collab

import (
	"context"
	"fmt"
	"sync"

	"autoninja/pkg/collab/collaberrors"
	"autoninja/pkg/config"
)

// MockCollaborator serves scripted responses. It backs the dev-mode provider
// and the pipeline tests: with no script it emits a plausible JSON document
// for its role, and scripted entries can inject throttling or other failures.
type MockCollaborator struct {
	mu      sync.Mutex
	id      string
	script  []MockResponse
	nextIdx int
	// Invocations records every input the mock has seen, for assertions.
	Invocations []string
}

// MockResponse is one scripted invocation outcome.
type MockResponse struct {
	// Err terminates the invocation when non-nil.
	Err error
	// Text is the response text streamed on success.
	Text string
}

// NewMockCollaborator creates a mock for a role with an optional script.
// Once the script is exhausted (or when empty) the mock serves the canned
// role document.
func NewMockCollaborator(id string, script ...MockResponse) *MockCollaborator {
	return &MockCollaborator{id: id, script: script}
}

// ThrottledTimes prepends n throttling failures to the script.
func (m *MockCollaborator) ThrottledTimes(n int) *MockCollaborator {
	m.mu.Lock()
	defer m.mu.Unlock()
	throttled := make([]MockResponse, n, n+len(m.script))
	for i := range throttled {
		throttled[i] = MockResponse{Err: collaberrors.NewErrorWithStatus(
			collaberrors.ErrorTypeThrottling, 429, "rate limit exceeded")}
	}
	m.script = append(throttled, m.script...)
	return m
}

// ID implements Collaborator.
func (m *MockCollaborator) ID() string { return m.id }

// ModelName implements Collaborator.
func (m *MockCollaborator) ModelName() string { return "mock" }

// InvocationCount returns how many times Invoke has been called.
func (m *MockCollaborator) InvocationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Invocations)
}

// Invoke implements Collaborator.
func (m *MockCollaborator) Invoke(_ context.Context, _, inputText string) (<-chan StreamChunk, error) {
	m.mu.Lock()
	m.Invocations = append(m.Invocations, inputText)
	var resp MockResponse
	if m.nextIdx < len(m.script) {
		resp = m.script[m.nextIdx]
		m.nextIdx++
	} else {
		resp = MockResponse{Text: cannedResponse(m.id)}
	}
	m.mu.Unlock()

	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		if resp.Err != nil {
			ch <- StreamChunk{Error: resp.Err}
			return
		}
		ch <- StreamChunk{Content: resp.Text}
		ch <- StreamChunk{Done: true}
	}()
	return ch, nil
}

// cannedResponse returns a minimal valid document for a role, fenced the way
// hosted models fence their output.
func cannedResponse(id string) string {
	var body string
	switch id {
	case config.CollabRequirementsAnalyst:
		body = `{"agent_name": "mock-agent", "description": "mock requirements", "capabilities": ["respond"], "constraints": [], "success_criteria": ["responds"]}`
	case config.CollabSolutionArchitect:
		body = `{"components": [{"name": "core", "responsibility": "respond", "interfaces": []}], "data_flows": [], "runtime": {"platform": "mock"}, "dependencies": []}`
	case config.CollabCodeGenerator:
		body = `{"files": [{"path": "main.go", "content": "package main"}], "entry_point": "main.go", "build_instructions": "none"}`
	case config.CollabQualityValidator:
		body = `{"is_valid": true, "score": 9, "risk_level": "low", "issues": [], "recommendations": []}`
	case config.CollabDeploymentManager:
		body = `{"deployment_target": "mock", "steps": ["deploy"], "rollback_plan": ["rollback"], "monitoring": {}}`
	default:
		body = `{"ok": true}`
	}
	return fmt.Sprintf("```json\n%s\n```", body)
}
