package logx

import (
	"errors"
	"testing"
)

func TestDomainFiltering(t *testing.T) {
	debugMutex.Lock()
	orig := *debugConfig
	debugMutex.Unlock()
	defer func() {
		debugMutex.Lock()
		*debugConfig = orig
		debugMutex.Unlock()
	}()

	SetDebug(false)
	if IsDebugEnabledForDomain("pipeline") {
		t.Error("debug should be disabled for all domains when globally off")
	}

	SetDebug(true)
	debugMutex.Lock()
	debugConfig.Domains = nil
	debugMutex.Unlock()
	if !IsDebugEnabledForDomain("pipeline") {
		t.Error("nil domain set should enable all domains")
	}

	debugMutex.Lock()
	debugConfig.Domains = map[string]bool{"throttle": true}
	debugMutex.Unlock()
	if IsDebugEnabledForDomain("pipeline") {
		t.Error("pipeline domain should be filtered out")
	}
	if !IsDebugEnabledForDomain("throttle") {
		t.Error("throttle domain should be enabled")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	base := errors.New("boom")
	wrapped := Wrap(base, "db connect")
	if wrapped == nil {
		t.Fatal("Wrap should return non-nil for non-nil error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should unwrap to the original")
	}
	if wrapped.Error() != "db connect: boom" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
}

func TestWithComponent(t *testing.T) {
	l := NewLogger("a")
	l2 := l.WithComponent("b")
	if l2.GetComponent() != "b" {
		t.Errorf("expected component b, got %s", l2.GetComponent())
	}
	if l.GetComponent() != "a" {
		t.Error("original logger should be unchanged")
	}
}
