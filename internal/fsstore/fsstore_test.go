package fsstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockForPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := []struct {
		target string
		want   string
	}{
		{filepath.Join(dir, "users.json"), filepath.Join(dir, ".fslocks", "users.json.lck")},
		{filepath.Join(dir, "Messages Log.json"), filepath.Join(dir, ".fslocks", "messages_log.json.lck")},
		{filepath.Join(dir, ".hidden."), filepath.Join(dir, ".fslocks", "hidden.lck")},
	}
	for _, tc := range cases {
		lock, err := LockFor(tc.target, 0)
		if err != nil {
			t.Fatalf("LockFor(%q) error = %v", tc.target, err)
		}
		if lock.Path() != tc.want {
			t.Fatalf("LockFor(%q).Path() = %q, want %q", tc.target, lock.Path(), tc.want)
		}
	}
}

func TestLockForInvalidTarget(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"", "   ", "..", filepath.Join("data", strings.Repeat("a", 200))} {
		if _, err := LockFor(target, 0); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("LockFor(%q) error = %v, want ErrInvalidPath", target, err)
		}
	}
}

func TestReadWriteJSONAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "users.json")
	type payload struct {
		Name string `json:"name"`
	}
	in := map[string]payload{"42": {Name: "alpha"}}
	if err := WriteJSONAtomic(path, in, FileOptions{}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}
	var out map[string]payload
	ok, err := ReadJSON(path, &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if !ok {
		t.Fatalf("ReadJSON() exists = false, want true")
	}
	if out["42"].Name != "alpha" {
		t.Fatalf("ReadJSON() value = %+v, want %+v", out, in)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != defaultFilePerm {
		t.Fatalf("file perm = %o, want %o", perm, defaultFilePerm)
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp.") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestWriteJSONAtomicCompact(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "messages.json")
	if err := WriteJSONAtomic(path, []int{1, 2}, FileOptions{Compact: true}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(raw) != "[1,2]\n" {
		t.Fatalf("compact output = %q", string(raw))
	}
}

func TestReadJSONMissingOrBlank(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var out map[string]any
	ok, err := ReadJSON(filepath.Join(dir, "missing.json"), &out)
	if err != nil || ok {
		t.Fatalf("ReadJSON(missing) = (%v, %v), want (false, nil)", ok, err)
	}

	blank := filepath.Join(dir, "blank.json")
	if err := os.WriteFile(blank, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	ok, err = ReadJSON(blank, &out)
	if err != nil || ok {
		t.Fatalf("ReadJSON(blank) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestReadJSONDecodeError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	var out map[string]any
	_, err := ReadJSON(path, &out)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("ReadJSON() error = %v, want ErrDecodeFailed", err)
	}
}
