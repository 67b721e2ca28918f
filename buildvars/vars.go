// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

// Package buildvars contains variables injected at build time.
package buildvars

// Version is set at link time via `-ldflags -X github.com/toeirei/gatekeeper/buildvars.Version=...`.
// It will be empty for local or development builds.
var Version string

// VersionOrDefault returns `Version` if set, otherwise returns the provided default.
func VersionOrDefault(def string) string {
	if len(Version) > 0 {
		return Version
	}
	return def
}

// Describe renders the version line shown by --version and the version
// command, e.g. "1.4.0 (a1b2c3d) built: 2026-05-01T10:00:00Z". A "dev" or
// empty commit and an empty date are left out.
func Describe(version, commit, date string) string {
	out := version
	if commit != "" && commit != "dev" {
		out += " (" + commit + ")"
	}
	if date != "" {
		out += " built: " + date
	}
	return out
}
