package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveWithin(t *testing.T) {
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "clip.jsonl"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(base, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	outside := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"relative file", "clip.jsonl", false},
		{"relative missing file", "new.jsonl", false},
		{"nested", "sub/clip.jsonl", false},
		{"absolute inside", filepath.Join(base, "clip.jsonl"), false},
		{"dot dot", "../escape.jsonl", true},
		{"nested dot dot", "sub/../../escape.jsonl", true},
		{"absolute outside", filepath.Join(outside, "clip.jsonl"), true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(base, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ResolveWithin(%q) = %q, want error", tt.path, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWithin(%q) unexpected error: %v", tt.path, err)
			}
			if !filepath.IsAbs(got) {
				t.Errorf("ResolveWithin(%q) = %q, want absolute path", tt.path, got)
			}
		})
	}
}

func TestResolveWithinSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(base, "evil")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	if _, err := ResolveWithin(base, "evil/clip.jsonl"); err == nil {
		t.Error("expected symlinked parent escaping the base to be rejected")
	}
}
