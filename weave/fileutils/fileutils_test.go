package fileutils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteJSONFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := WriteJSONFileAtomic(path, payload{Name: "alice", Count: 3}, false); err != nil {
		t.Fatalf("write: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "{\"name\":\"alice\",\"count\":3}\n" {
		t.Fatalf("content=%q", string(b))
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, got %d entries", len(entries))
	}

	// Overwrite replaces the content wholesale.
	if err := WriteJSONFileAtomic(path, payload{Name: "bob", Count: 1}, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	b, _ = os.ReadFile(path)
	if string(b) != "{\n  \"name\": \"bob\",\n  \"count\": 1\n}\n" {
		t.Fatalf("pretty content=%q", string(b))
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("  hello  ", 10); got != "hello" {
		t.Fatalf("Truncate trim: %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello…" {
		t.Fatalf("Truncate cut: %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Fatalf("Truncate max<=0: %q", got)
	}
}

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	type verdict struct {
		Same bool `json:"same"`
	}

	var v verdict
	if err := DecodeModelJSON("  {\"same\": true}  ", &v); err != nil || !v.Same {
		t.Fatalf("plain JSON: v=%+v err=%v", v, err)
	}

	v = verdict{}
	if err := DecodeModelJSON("Sure! Here you go: {\"same\": true} Hope that helps.", &v); err != nil || !v.Same {
		t.Fatalf("wrapped JSON: v=%+v err=%v", v, err)
	}

	if err := DecodeModelJSON("no json here", &v); err == nil {
		t.Fatal("expected error when no object is present")
	}
	if err := DecodeModelJSON("", &v); err == nil {
		t.Fatal("expected error for empty output")
	}
}
