// Package contenttest provides a small but complete practices document
// for tests of the packages that consume content.
package contenttest

import (
	_ "embed"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/sogretobot/internal/content"
)

//go:embed practices.json
var practicesJSON []byte

// JSON returns the raw fixture document
func JSON() []byte {
	return append([]byte(nil), practicesJSON...)
}

// Tree parses the fixture and fails the test on error
func Tree(t testing.TB) *content.Tree {
	t.Helper()
	tree, err := content.Parse(practicesJSON, content.FormatJSON)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return tree
}

// Store writes the fixture to a temp dir and opens a store on it
func Store(t testing.TB) *content.Store {
	t.Helper()
	path := WriteFile(t, t.TempDir())
	store, err := content.NewStore(path)
	if err != nil {
		t.Fatalf("open fixture store: %v", err)
	}
	return store
}

// WriteFile writes the fixture into dir and returns its path
func WriteFile(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "practices.json")
	if err := os.WriteFile(path, practicesJSON, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}
