package localsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func testArchive(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	doc := `{"map":"Ice","gameVersion":"1.2","players":[{"name":"alice","team":1},{"name":"bob","team":2}]}`
	dir := filepath.Join(root, "casual")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "r1.json"), []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestInitValidatesDirectory(t *testing.T) {
	source := New(nil)

	if err := source.Init(map[string]any{}); err == nil {
		t.Error("Expected error for missing dir")
	}
	if err := source.Init(map[string]any{"dir": "/does/not/exist"}); err == nil {
		t.Error("Expected error for nonexistent dir")
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := source.Init(map[string]any{"dir": file}); err == nil {
		t.Error("Expected error for non-directory path")
	}

	if err := source.Init(map[string]any{"dir": t.TempDir()}); err != nil {
		t.Errorf("Init failed for valid dir: %v", err)
	}
}

func TestFetchIndexScansTree(t *testing.T) {
	source := New(nil)
	if err := source.Init(map[string]any{"dir": testArchive(t)}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	index, err := source.FetchIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchIndex failed: %v", err)
	}
	if len(index.Replays) != 1 {
		t.Fatalf("Expected 1 replay, got %d", len(index.Replays))
	}
	if index.Replays[0].URL != "casual/r1.json" {
		t.Errorf("Expected relative URL, got %s", index.Replays[0].URL)
	}
}

func TestFetchReplayConfinedToRoot(t *testing.T) {
	source := New(nil)
	root := testArchive(t)
	if err := source.Init(map[string]any{"dir": root}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	data, err := source.FetchReplay(context.Background(), "casual/r1.json")
	if err != nil {
		t.Fatalf("FetchReplay failed: %v", err)
	}
	if len(data) == 0 {
		t.Error("Expected replay payload")
	}

	for _, path := range []string{"../outside.json", "/etc/passwd", "casual/../../x"} {
		if _, err := source.FetchReplay(context.Background(), path); err == nil {
			t.Errorf("Expected path %q to be rejected", path)
		}
	}
}
