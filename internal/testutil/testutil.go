// Package testutil provides test helpers shared by package tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile creates a file with the given content in the specified directory.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create parent dirs for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// Manifest renders a minimal manifest literal for a module.
func Manifest(name, version string, depends ...string) string {
	quoted := make([]string, len(depends))
	for i, d := range depends {
		quoted[i] = fmt.Sprintf("%q", d)
	}
	return fmt.Sprintf(`# -*- coding: utf-8 -*-
{
    'name': %q,
    'version': %q,
    'depends': [%s],
    'data': [],
    'installable': True,
}
`, name, version, strings.Join(quoted, ", "))
}

// WriteModule creates a module directory under root with a manifest, an
// init file, a models package and any extra files given as path -> content.
func WriteModule(t *testing.T, root, name string, extra map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	WriteFile(t, dir, "__manifest__.py", Manifest(name, "16.0.1.0.0", "base"))
	WriteFile(t, dir, "__init__.py", "from . import models\n")
	WriteFile(t, dir, "models/__init__.py", "from . import partner\n")
	WriteFile(t, dir, "models/partner.py", "class Partner:\n    pass\n")
	for rel, content := range extra {
		WriteFile(t, dir, rel, content)
	}
	return dir
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
