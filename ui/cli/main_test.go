// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/toeirei/gatekeeper/internal/config"
	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/fingerprint"
	"github.com/toeirei/gatekeeper/internal/httpapi"
	"github.com/toeirei/gatekeeper/internal/i18n"
)

type testEnv struct {
	dsn     string
	machine string
	keep    db.Store
}

// setupTestEnv isolates config discovery and creates a private in-memory
// SQLite database. One store stays open for the life of the test so the
// shared-cache database survives between command runs.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
	t.Setenv("HOME", tmp)
	t.Setenv("AppData", filepath.Join(tmp, "appdata"))
	wd, _ := os.Getwd()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	dsn := fmt.Sprintf("file:cli_%d?mode=memory&cache=shared", time.Now().UnixNano())
	keep, err := db.NewStoreFromDSN("sqlite", dsn)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { _ = keep.Close() })
	t.Cleanup(func() { i18n.Init("en") })
	return &testEnv{dsn: dsn, machine: "TEST-MACHINE", keep: keep}
}

// newTestApp returns an app that reports e.machine as this machine and does
// not start the watchdog.
func (e *testEnv) newTestApp() *app {
	a := newApp()
	a.startWatchdog = nil
	a.newHost = func(version string) fingerprint.Provider {
		return fingerprint.WithOverride(fingerprint.NewHostProvider(version), e.machine)
	}
	return a
}

// executeCommand runs a fresh root command against the test database and
// returns everything written to stdout and stderr.
func (e *testEnv) executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return e.executeWith(t, e.newTestApp(), stdin, args...)
}

func (e *testEnv) executeWith(t *testing.T, a *app, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(a)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args,
		"--database.type", "sqlite",
		"--database.dsn", e.dsn,
		"--log.level", "error",
	))
	err := cmd.ExecuteContext(context.Background())
	a.close()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.executeCommand(t, "", args...)
	if err != nil {
		t.Fatalf("%v failed: %v\n%s", args, err, out)
	}
	return out
}

// issueKeys creates the product and returns n fresh keys.
func (e *testEnv) issueKeys(t *testing.T, days, n int) []string {
	t.Helper()
	products := e.mustRun(t, "products", "list")
	if !strings.Contains(products, "Premium") {
		e.mustRun(t, "products", "add", "Premium")
	}
	out := e.mustRun(t, "keys", "issue", "--product", "1", "--days", fmt.Sprint(days), "-n", fmt.Sprint(n))
	var keys []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) == 36 && strings.Count(line, "-") == 4 {
			keys = append(keys, line)
		}
	}
	if len(keys) != n {
		t.Fatalf("expected %d keys, got %v from\n%s", n, keys, out)
	}
	return keys
}

func TestUserFlow(t *testing.T) {
	e := setupTestEnv(t)
	keys := e.issueKeys(t, 30, 2)

	out := e.mustRun(t, "register", "-u", "alice", "-p", "pw", "--confirm", "pw", "-k", keys[0])
	if !strings.Contains(out, "Account alice created (id 1).") {
		t.Fatalf("unexpected register output: %s", out)
	}

	out = e.mustRun(t, "login", "-u", "alice", "-p", "pw")
	if !strings.Contains(out, "Welcome, alice.") || !strings.Contains(out, "Subscription active until") {
		t.Fatalf("unexpected login output: %s", out)
	}

	out = e.mustRun(t, "redeem", "-u", "alice", "-p", "pw", "-k", keys[1])
	if !strings.Contains(out, "Key redeemed. Premium is active until") {
		t.Fatalf("unexpected redeem output: %s", out)
	}

	out = e.mustRun(t, "status", "-u", "alice", "-p", "pw")
	if strings.Count(out, "Premium") != 2 {
		t.Fatalf("expected two Premium subscriptions, got: %s", out)
	}

	// The first login bound the account to TEST-MACHINE.
	e.machine = "OTHER-MACHINE"
	out, err := e.executeCommand(t, "", "login", "-u", "alice", "-p", "pw")
	if err == nil || !strings.Contains(out, "bound to a different machine") {
		t.Fatalf("expected hardware mismatch, got %v: %s", err, out)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := setupTestEnv(t)
	keys := e.issueKeys(t, 30, 1)
	e.mustRun(t, "register", "-u", "bob", "-p", "pw", "--confirm", "pw", "-k", keys[0])

	for _, args := range [][]string{
		{"login", "-u", "bob", "-p", "wrong"},
		{"login", "-u", "nobody", "-p", "pw"},
	} {
		out, err := e.executeCommand(t, "", args...)
		if err == nil || !strings.Contains(out, "Invalid username or password.") {
			t.Fatalf("%v: expected invalid credentials, got %v: %s", args, err, out)
		}
	}
}

func TestRegister_PromptsAndRejections(t *testing.T) {
	e := setupTestEnv(t)
	keys := e.issueKeys(t, 30, 2)

	out, err := e.executeCommand(t, "carol\nsecret\nsecret\n", "register", "-k", keys[0])
	if err != nil || !strings.Contains(out, "Account carol created") {
		t.Fatalf("prompted register failed: %v: %s", err, out)
	}
	if !strings.Contains(out, "Username: ") || !strings.Contains(out, "Confirm password: ") {
		t.Fatalf("expected prompts in output: %s", out)
	}

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"reused key", []string{"register", "-u", "dave", "-p", "pw", "--confirm", "pw", "-k", keys[0]}, "already been redeemed"},
		{"unknown key", []string{"register", "-u", "dave", "-p", "pw", "--confirm", "pw", "-k", "NOPE"}, "license key is invalid"},
		{"taken name", []string{"register", "-u", "carol", "-p", "pw", "--confirm", "pw", "-k", keys[1]}, "already taken"},
		{"mismatch", []string{"register", "-u", "erin", "-p", "pw", "--confirm", "other", "-k", keys[1]}, "Passwords do not match."},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := e.executeCommand(t, "", c.args...)
			if err == nil || !strings.Contains(out, c.want) {
				t.Fatalf("expected %q, got %v: %s", c.want, err, out)
			}
		})
	}

	// keys[1] survived every failed attempt.
	if out := e.mustRun(t, "keys", "list"); !strings.Contains(out, keys[1]) {
		t.Fatalf("expected %s to remain available: %s", keys[1], out)
	}
}

func TestLogin_German(t *testing.T) {
	e := setupTestEnv(t)
	keys := e.issueKeys(t, 30, 1)
	e.mustRun(t, "register", "-u", "frank", "-p", "pw", "--confirm", "pw", "-k", keys[0])

	out := e.mustRun(t, "login", "-u", "frank", "-p", "pw", "--language", "de")
	if !strings.Contains(out, "Willkommen, frank.") {
		t.Fatalf("expected German output: %s", out)
	}
}

func TestKeysExportImport(t *testing.T) {
	src := setupTestEnv(t)
	keys := src.issueKeys(t, 7, 3)
	file := filepath.Join(t.TempDir(), "pool")

	out := src.mustRun(t, "keys", "export", file)
	if !strings.Contains(out, "Exported 3 keys to "+file+".zst") {
		t.Fatalf("unexpected export output: %s", out)
	}

	dstDSN := fmt.Sprintf("file:cli_dst_%d?mode=memory&cache=shared", time.Now().UnixNano())
	keep, err := db.NewStoreFromDSN("sqlite", dstDSN)
	if err != nil {
		t.Fatalf("open target: %v", err)
	}
	defer func() { _ = keep.Close() }()
	dst := &testEnv{dsn: dstDSN, machine: "TEST-MACHINE", keep: keep}

	out = dst.mustRun(t, "keys", "import", file+".zst")
	if !strings.Contains(out, "Imported 3 keys") {
		t.Fatalf("unexpected import output: %s", out)
	}
	listed := dst.mustRun(t, "keys", "list")
	for _, k := range keys {
		if !strings.Contains(listed, k) {
			t.Fatalf("key %s missing after import: %s", k, listed)
		}
	}
}

func TestProducts(t *testing.T) {
	e := setupTestEnv(t)
	if out := e.mustRun(t, "products", "list"); !strings.Contains(out, "No products.") {
		t.Fatalf("expected empty list: %s", out)
	}
	e.mustRun(t, "products", "add", "Premium")
	out, err := e.executeCommand(t, "", "products", "add", "Premium")
	if err == nil || !strings.Contains(out, "already exists") {
		t.Fatalf("expected duplicate product error, got %v: %s", err, out)
	}
	out, err = e.executeCommand(t, "", "keys", "issue", "--product", "9")
	if err == nil || !strings.Contains(out, "does not exist") {
		t.Fatalf("expected unknown product error, got %v: %s", err, out)
	}
}

func TestMaintenance_SqliteFile(t *testing.T) {
	e := setupTestEnv(t)
	e.dsn = filepath.Join(t.TempDir(), "gk.db")
	out := e.mustRun(t, "maintenance")
	if !strings.Contains(out, "Database maintenance completed.") {
		t.Fatalf("unexpected maintenance output: %s", out)
	}
}

func TestVersionNeedsNoDatabase(t *testing.T) {
	setupTestEnv(t)
	a := newApp()
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--database.type", "oracle"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out.String()) == "" {
		t.Fatalf("expected a version string")
	}
	if a.store != nil {
		t.Fatalf("version must not open the database")
	}
}

func TestConfigWrite(t *testing.T) {
	e := setupTestEnv(t)
	out := e.mustRun(t, "config", "write", "--language", "de")
	if !strings.Contains(out, "Konfiguration nach") {
		t.Fatalf("unexpected output: %s", out)
	}
	path := strings.TrimSuffix(strings.TrimSpace(out[strings.Index(out, "nach ")+len("nach "):]), " geschrieben.")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read written config: %v", err)
	}
	if !strings.Contains(string(data), "language: de") || !strings.Contains(string(data), e.dsn) {
		t.Fatalf("unexpected config file:\n%s", data)
	}
}

func TestInvalidConfigIsReported(t *testing.T) {
	e := setupTestEnv(t)
	out, err := e.executeCommand(t, "", "products", "list", "--language", "fr")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Fatalf("expected invalid configuration, got %v: %s", err, out)
	}
}

func TestUserError(t *testing.T) {
	i18n.Init("en")
	cases := []struct {
		in   error
		want string
	}{
		{&core.TransientError{Op: "login", Cause: context.DeadlineExceeded}, "temporarily unavailable"},
		{&core.RejectedError{Reason: core.ErrInvalidCredentials}, "Invalid username or password."},
		{&core.RejectedError{Reason: core.ErrAlreadyRedeemed}, "already been redeemed"},
		{&core.RejectedError{Reason: core.ErrInvalidKey}, "license key is invalid"},
		{&core.RejectedError{Reason: core.ErrAccountNotFound}, "Account not found."},
		{&core.RejectedError{Reason: fmt.Errorf("%w: name is required", core.ErrInvalidInput)}, "Invalid input: name is required"},
	}
	for _, c := range cases {
		if got := userError(c.in).Error(); !strings.Contains(got, c.want) {
			t.Errorf("userError(%v) = %q, want it to contain %q", c.in, got, c.want)
		}
	}
	plain := errors.New("boom")
	if userError(plain) != plain {
		t.Fatalf("unmapped errors must pass through")
	}
}

func TestResolveBuildVersion_WithBuildInfo(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/toeirei/gatekeeper", Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "deadbeef"},
			{Key: "vcs.time", Value: "2026-01-01T00:00:00Z"},
		},
	}
	v, c, d := resolveBuildVersion(info)
	if v != "v1.2.3" || c != "deadbeef" || d != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected build version: %s %s %s", v, c, d)
	}
}

func TestApplyDefaultFlags_AddsFlags(t *testing.T) {
	cmd := &cobra.Command{}
	applyDefaultFlags(cmd)
	applyDefaultFlags(cmd)
	for _, name := range []string{"database.type", "database.dsn", "language", "log.level", "remote.url"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("%s flag not present", name)
		}
	}
	for _, name := range []string{"watchdog.enabled", "fingerprint.override"} {
		if cmd.PersistentFlags().Lookup(name) != nil {
			t.Fatalf("%s must not be settable by users", name)
		}
	}
}

func TestMachineIdentityAndWatchdogAreNotConfigurable(t *testing.T) {
	e := setupTestEnv(t)
	t.Setenv("GATEKEEPER_FINGERPRINT_OVERRIDE", "SHARED-ID")
	t.Setenv("GATEKEEPER_WATCHDOG_ENABLED", "false")

	started := false
	a := newApp()
	a.startWatchdog = func(config.Config) { started = true }
	if _, err := e.executeWith(t, a, "", "products", "list"); err != nil {
		t.Fatalf("products list failed: %v", err)
	}
	if !started {
		t.Fatalf("the watchdog must start regardless of configuration")
	}
	if got := a.host.Fingerprint().MachineID; got == "SHARED-ID" {
		t.Fatalf("machine id taken from the environment")
	}

	for _, flag := range []string{"--fingerprint.override=SHARED-ID", "--watchdog.enabled=false"} {
		if _, err := e.executeCommand(t, "", "products", "list", flag); err == nil {
			t.Fatalf("expected %s to be rejected as an unknown flag", flag)
		}
	}
}

func TestGetConfigPathFromCli(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file")
	if p, err := getConfigPathFromCli(cmd); err != nil || p != nil {
		t.Fatalf("expected nil path when flag not set, got %v, %v", p, err)
	}

	file := filepath.Join(t.TempDir(), "gk.yaml")
	if err := os.WriteFile(file, []byte("language: en\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = cmd.Flags().Set("config", file)
	if p, err := getConfigPathFromCli(cmd); err != nil || p == nil || *p != file {
		t.Fatalf("expected %s, got %v, %v", file, p, err)
	}

	_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := getConfigPathFromCli(cmd); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestRemoteMode(t *testing.T) {
	e := setupTestEnv(t)
	keys := e.issueKeys(t, 30, 2)

	svc := core.NewServices(e.keep, fingerprint.NewStatic("SERVER"), core.Options{})
	ts := httptest.NewServer(httpapi.New(svc, nil))
	t.Cleanup(func() {
		ts.Close()
		_ = svc.Close()
	})
	remote := []string{"--remote.url", ts.URL}

	out := e.mustRun(t, append([]string{"register", "-u", "remy", "-p", "pw", "--confirm", "pw", "-k", keys[0]}, remote...)...)
	if !strings.Contains(out, "Account remy created") {
		t.Fatalf("unexpected register output: %s", out)
	}
	out = e.mustRun(t, append([]string{"login", "-u", "remy", "-p", "pw"}, remote...)...)
	if !strings.Contains(out, "Welcome, remy.") || !strings.Contains(out, "Subscription active until") {
		t.Fatalf("unexpected login output: %s", out)
	}
	out = e.mustRun(t, append([]string{"redeem", "-u", "remy", "-p", "pw", "-k", keys[1]}, remote...)...)
	if !strings.Contains(out, "Premium is active until") {
		t.Fatalf("unexpected redeem output: %s", out)
	}

	// Admin commands keep using the local database.
	out = e.mustRun(t, append([]string{"keys", "list"}, remote...)...)
	if !strings.Contains(out, "No unredeemed keys.") {
		t.Fatalf("unexpected keys list output: %s", out)
	}

	// The client reports its own machine, so the binding follows it.
	e.machine = "ELSEWHERE"
	out, err := e.executeCommand(t, "", append([]string{"login", "-u", "remy", "-p", "pw"}, remote...)...)
	if err == nil || !strings.Contains(out, "bound to a different machine") {
		t.Fatalf("expected hardware mismatch, got %v: %s", err, out)
	}

	ts.Close()
	out, err = e.executeCommand(t, "", append([]string{"login", "-u", "remy", "-p", "pw"}, remote...)...)
	if err == nil || !strings.Contains(out, "temporarily unavailable") {
		t.Fatalf("expected transient failure, got %v: %s", err, out)
	}
}
