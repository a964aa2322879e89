// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := AtomicWriteFile(path, []byte("port = 8080\n"), 0o600); err != nil {
		t.Fatalf("AtomicWriteFile() error = %v", err)
	}
	if err := AtomicWriteFile(path, []byte("port = 9090\n"), 0o600); err != nil {
		t.Fatalf("AtomicWriteFile() overwrite error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(got) != "port = 9090\n" {
		t.Errorf("content = %q, want %q", got, "port = 9090\n")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("mode = %v, want 0600", info.Mode().Perm())
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the target file", len(entries))
	}
}

func TestAtomicWriteFileWithDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("directory modes are not enforced on windows")
	}
	dir := filepath.Join(t.TempDir(), "private")
	path := filepath.Join(dir, "state.json")

	if err := AtomicWriteFileWithDir(path, []byte("{}"), 0o644, 0o750); err != nil {
		t.Fatalf("AtomicWriteFileWithDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm()&0o007 != 0 {
		t.Errorf("dir mode = %v, want no access for others", info.Mode().Perm())
	}
}

func TestAtomicWriteFileIntoMissingParentFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWriteFile(filepath.Join(blocker, "child"), []byte("x"), 0o600); err == nil {
		t.Error("AtomicWriteFile() under a regular file succeeded, want error")
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "Glycemic index", 20, "Glycemic index"},
		{"exact", "abcdef", 6, "abcdef"},
		{"ascii", "Glycemic index tables", 10, "Glycemi..."},
		{"zero", "abc", 0, ""},
		{"tiny", "abcdef", 2, "ab"},
		{"wide", "血糖指数について", 7, "血糖..."},
		{"wide never split", "血糖指数", 5, "血..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWidth(tt.in, tt.width)
			if got != tt.want {
				t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
			if w := runewidth.StringWidth(got); w > tt.width {
				t.Errorf("width %d exceeds %d", w, tt.width)
			}
		})
	}
}

func TestIndent(t *testing.T) {
	got := Indent("one\n\ntwo", "  ")
	if got != "  one\n\n  two" {
		t.Errorf("Indent() = %q", got)
	}
}

func TestDelta(t *testing.T) {
	d, replaced := Delta("The", "The answer")
	if d != " answer" || replaced {
		t.Errorf("Delta() = %q, %v", d, replaced)
	}
	d, replaced = Delta("The answer", "Other")
	if d != "Other" || !replaced {
		t.Errorf("Delta() on replaced text = %q, %v", d, replaced)
	}
	d, _ = Delta("", strings.Repeat("x", 3))
	if d != "xxx" {
		t.Errorf("Delta() from empty = %q", d)
	}
}
