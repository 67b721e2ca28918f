// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package i18n

import (
	"io/fs"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitAndAvailableLocales(t *testing.T) {
	Init("en")
	if GetLang() != "en" {
		t.Fatalf("expected lang 'en', got %q", GetLang())
	}

	av := GetAvailableLocales()
	for _, k := range []string{"en", "de"} {
		if _, ok := av[k]; !ok {
			t.Fatalf("expected available locale %q to be present", k)
		}
	}
	if av["de"] != "Deutsch" {
		t.Fatalf("unexpected display name for de: %q", av["de"])
	}
}

func TestT_BasicAndFormatting(t *testing.T) {
	Init("en")

	if got := T("login.hardware_mismatch"); got != "This account is bound to a different machine." {
		t.Fatalf("unexpected translation: %q", got)
	}
	if got := T("register.ok", "alice", 7); got != "Account alice created (id 7)." {
		t.Fatalf("unexpected formatted translation: %q", got)
	}

	SetLang("de")
	defer SetLang("en")
	if GetLang() != "de" {
		t.Fatalf("expected lang 'de', got %q", GetLang())
	}
	if got := T("keys.issued", 3); got != "3 Schlüssel erzeugt." {
		t.Fatalf("expected German translation, got %q", got)
	}
}

func TestT_UnknownIDAndLanguage(t *testing.T) {
	Init("xx")
	defer Init("en")
	if got := T("status.none"); got != "No active subscriptions." {
		t.Fatalf("expected English fallback, got %q", got)
	}
	if got := T("does.not.exist"); got != "does.not.exist" {
		t.Fatalf("expected message ID fallback, got %q", got)
	}
}

// Every message ID of the English file must be translated in every other
// locale.
func TestLocalesComplete(t *testing.T) {
	load := func(name string) map[string]string {
		data, err := fs.ReadFile(localeFS, "locales/"+name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		m := map[string]string{}
		if err := yaml.Unmarshal(data, &m); err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		return m
	}
	en := load("en.yaml")
	files, _ := fs.ReadDir(localeFS, "locales")
	for _, f := range files {
		if f.Name() == "en.yaml" {
			continue
		}
		other := load(f.Name())
		for id := range en {
			if other[id] == "" {
				t.Errorf("%s: missing translation for %q", f.Name(), id)
			}
		}
	}
}
