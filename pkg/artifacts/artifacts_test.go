package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorePut(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)

	uri, err := store.Put(context.Background(),
		"job-friend-20250115-143022", "REQUIREMENTS", "output.json",
		[]byte(`{"agent_name": "friend"}`), "application/json")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !strings.HasPrefix(uri, "file://") {
		t.Errorf("uri = %q, want file:// prefix", uri)
	}

	path := filepath.Join(dir, "job-friend-20250115-143022", "REQUIREMENTS", "output.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(data) != `{"agent_name": "friend"}` {
		t.Errorf("content = %q", data)
	}
}

func TestLocalStoreSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)

	_, err := store.Put(context.Background(),
		"job/evil", "STAGE NAME", "out.json", []byte("{}"), "application/json")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "job-evil", "STAGE-NAME", "out.json")); err != nil {
		t.Errorf("sanitized path missing: %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	key := objectKey("job-a-20250101-000000", "CODE", "output.json")
	if key != "job-a-20250101-000000/CODE/output.json" {
		t.Errorf("key = %q", key)
	}
}
