// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// i18n-linter checks that every message ID passed to i18n.T exists in the
// primary locale and that every locale carries the same IDs.
//
// Usage: go run ./tools/i18n-linter [project-root]
package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Location stores the file and line number of a found string.
type Location struct {
	Filepath string
	Line     int
}

func (l Location) String() string { return fmt.Sprintf("%s:%d", l.Filepath, l.Line) }

const (
	localesDir    = "internal/i18n/locales"
	primaryLocale = "en.yaml"
)

// Report is the outcome of one lint run.
type Report struct {
	// Undefined are IDs used in code but absent from the primary locale.
	Undefined map[string][]Location
	// Orphaned are IDs in the primary locale that no code uses.
	Orphaned []string
	// Missing maps each secondary locale to the primary IDs it lacks.
	Missing map[string][]string
	// Dynamic are i18n.T calls whose ID is not a string literal.
	Dynamic []Location
}

// Failed reports whether the run found errors. Orphans only warn.
func (r Report) Failed() bool {
	if len(r.Undefined) > 0 {
		return true
	}
	for _, keys := range r.Missing {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	fmt.Println("🔍 Running i18n linter...")
	rep, err := lint(root)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	printReport(rep)
	if rep.Failed() {
		os.Exit(1)
	}
}

// lint scans the Go sources below root and compares them with the locales.
func lint(root string) (Report, error) {
	used, dynamic, err := findUsedKeys(root)
	if err != nil {
		return Report{}, fmt.Errorf("error finding used keys: %w", err)
	}
	dir := filepath.Join(root, localesDir)
	primary, err := loadKeysFromLocale(filepath.Join(dir, primaryLocale))
	if err != nil {
		return Report{}, fmt.Errorf("error loading primary locale %q: %w", primaryLocale, err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return Report{}, fmt.Errorf("error finding locale files: %w", err)
	}

	rep := Report{Undefined: map[string][]Location{}, Missing: map[string][]string{}, Dynamic: dynamic}
	for id, locs := range used {
		if _, ok := primary[id]; !ok {
			rep.Undefined[id] = locs
		}
	}
	for id := range primary {
		if _, ok := used[id]; !ok {
			rep.Orphaned = append(rep.Orphaned, id)
		}
	}
	sort.Strings(rep.Orphaned)

	for _, f := range files {
		if filepath.Base(f) == primaryLocale {
			continue
		}
		keys, err := loadKeysFromLocale(f)
		if err != nil {
			return Report{}, fmt.Errorf("error loading %s: %w", f, err)
		}
		var missing []string
		for id := range primary {
			if _, ok := keys[id]; !ok {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		rep.Missing[filepath.Base(f)] = missing
	}
	return rep, nil
}

func printReport(rep Report) {
	fmt.Println("--- Undefined keys (used in code, missing from " + primaryLocale + ") ---")
	if len(rep.Undefined) == 0 {
		fmt.Println("  ✨ None found.")
	}
	ids := make([]string, 0, len(rep.Undefined))
	for id := range rep.Undefined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  - Undefined: %s (%s)\n", id, rep.Undefined[id][0])
	}

	fmt.Println("\n--- Orphaned keys (in " + primaryLocale + " but not used in code) ---")
	if len(rep.Orphaned) == 0 {
		fmt.Println("  ✨ None found.")
	}
	for _, id := range rep.Orphaned {
		fmt.Printf("  - Orphaned: %s\n", id)
	}

	fmt.Println("\n--- Missing keys per locale ---")
	locales := make([]string, 0, len(rep.Missing))
	for l := range rep.Missing {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	for _, l := range locales {
		fmt.Printf("Checking %s:\n", l)
		if len(rep.Missing[l]) == 0 {
			fmt.Println("  ✨ All keys present.")
		}
		for _, id := range rep.Missing[l] {
			fmt.Printf("  - Missing: %s\n", id)
		}
	}

	for _, loc := range rep.Dynamic {
		fmt.Printf("\n⚠️  i18n.T with a computed ID at %s cannot be checked.", loc)
	}

	fmt.Println("\n--- Linter Finished ---")
	switch {
	case rep.Failed():
		fmt.Println("❌ Found issues that need to be addressed.")
	case len(rep.Orphaned) > 0:
		fmt.Println("⚠️  Found orphaned keys. Please consider removing them.")
	default:
		fmt.Println("✅ All translation files are consistent!")
	}
}

// findUsedKeys parses the non-test .go files below root and collects the
// literal first argument of every i18n.T call.
func findUsedKeys(root string) (map[string][]Location, []Location, error) {
	used := make(map[string][]Location)
	var dynamic []Location
	fset := token.NewFileSet()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "tools" || name == "vendor" || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			return err
		}
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || !isTranslateCall(call) || len(call.Args) == 0 {
				return true
			}
			loc := Location{Filepath: path, Line: fset.Position(call.Pos()).Line}
			lit, ok := call.Args[0].(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				dynamic = append(dynamic, loc)
				return true
			}
			id, err := strconv.Unquote(lit.Value)
			if err != nil {
				return true
			}
			used[id] = append(used[id], loc)
			return true
		})
		return nil
	})
	return used, dynamic, err
}

func isTranslateCall(call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "T" {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == "i18n"
}

// loadKeysFromLocale reads a YAML file and returns a flat map of its keys.
func loadKeysFromLocale(path string) (map[string]struct{}, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, err
	}

	keys := make(map[string]struct{})
	flattenYAML("", data, keys)
	return keys, nil
}

// flattenYAML converts a nested map into dot-separated keys. Locale files
// may use either flat dotted IDs or nesting.
func flattenYAML(prefix string, node interface{}, keys map[string]struct{}) {
	switch v := node.(type) {
	case map[string]interface{}:
		for k, val := range v {
			newPrefix := k
			if prefix != "" {
				newPrefix = prefix + "." + k
			}
			flattenYAML(newPrefix, val, keys)
		}
	case []interface{}:
		for i, val := range v {
			flattenYAML(fmt.Sprintf("%s[%d]", prefix, i), val, keys)
		}
	default:
		if prefix != "" {
			keys[prefix] = struct{}{}
		}
	}
}
