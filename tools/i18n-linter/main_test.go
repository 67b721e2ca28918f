// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFlattenYAMLAndLoadKeys(t *testing.T) {
	m := map[string]interface{}{
		"top": map[string]interface{}{
			"sub": "value",
			"arr": []interface{}{"one", "two"},
		},
		"flat.key": "v",
	}
	keys := make(map[string]struct{})
	flattenYAML("", m, keys)
	for _, want := range []string{"top.sub", "top.arr[0]", "flat.key"} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("expected %s in %v", want, keys)
		}
	}

	p := filepath.Join(t.TempDir(), "test.yaml")
	data, _ := yaml.Marshal(m)
	writeFile(t, p, string(data))
	got, err := loadKeysFromLocale(p)
	if err != nil {
		t.Fatalf("loadKeysFromLocale failed: %v", err)
	}
	if _, ok := got["top.sub"]; !ok {
		t.Fatalf("expected loaded key top.sub")
	}
}

func TestLint(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cmd", "a.go"), `package cmd

func f(id string) {
	_ = i18n.T("used.key")
	_ = i18n.T("undefined.key", 1)
	_ = i18n.T(id)
	_ = other.T("not.ours")
}
`)
	writeFile(t, filepath.Join(root, "cmd", "a_test.go"), `package cmd

func g() { _ = i18n.T("only.in.tests") }
`)
	writeFile(t, filepath.Join(root, "tools", "x", "main.go"), `package main

func h() { _ = i18n.T("tools.are.skipped") }
`)
	writeFile(t, filepath.Join(root, localesDir, "en.yaml"), "used.key: \"A\"\norphan.key: \"B\"\n")
	writeFile(t, filepath.Join(root, localesDir, "de.yaml"), "used.key: \"A\"\n")

	rep, err := lint(root)
	if err != nil {
		t.Fatalf("lint failed: %v", err)
	}
	if len(rep.Undefined) != 1 || rep.Undefined["undefined.key"] == nil {
		t.Fatalf("unexpected undefined keys: %v", rep.Undefined)
	}
	if loc := rep.Undefined["undefined.key"][0]; loc.Line != 5 {
		t.Fatalf("unexpected location: %v", loc)
	}
	if len(rep.Orphaned) != 1 || rep.Orphaned[0] != "orphan.key" {
		t.Fatalf("unexpected orphans: %v", rep.Orphaned)
	}
	if m := rep.Missing["de.yaml"]; len(m) != 1 || m[0] != "orphan.key" {
		t.Fatalf("unexpected missing keys: %v", rep.Missing)
	}
	if len(rep.Dynamic) != 1 {
		t.Fatalf("expected one dynamic call, got %v", rep.Dynamic)
	}
	if !rep.Failed() {
		t.Fatalf("expected the report to fail")
	}
}

func TestLint_MissingPrimaryLocale(t *testing.T) {
	if _, err := lint(t.TempDir()); err == nil {
		t.Fatalf("expected an error without %s", primaryLocale)
	}
}

// The repository's own sources and locales must be consistent.
func TestLint_Repository(t *testing.T) {
	rep, err := lint(filepath.Join("..", ".."))
	if err != nil {
		t.Fatalf("lint failed: %v", err)
	}
	if rep.Failed() {
		t.Fatalf("undefined: %v, missing: %v", rep.Undefined, rep.Missing)
	}
}
