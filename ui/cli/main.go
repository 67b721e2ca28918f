// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/toeirei/gatekeeper/buildvars"
	"github.com/toeirei/gatekeeper/client"
	"github.com/toeirei/gatekeeper/internal/config"
	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/fingerprint"
	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/metrics"
	"github.com/toeirei/gatekeeper/internal/watchdog"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

// app holds the state shared by the commands of one root command.
type app struct {
	cfgFile string
	verbose bool

	cfg     config.Config
	store   db.Store
	svc     *core.Services
	metrics *metrics.Recorder
	host    fingerprint.Provider
	// client serves the account commands, locally or against remote.url.
	client client.Client

	stdin *bufio.Reader
	// startWatchdog launches the integrity watchdog.
	startWatchdog func(c config.Config)
	// newHost builds the provider of this machine's fingerprint.
	newHost func(version string) fingerprint.Provider
}

func newApp() *app {
	return &app{
		startWatchdog: func(c config.Config) {
			watchdog.New(c.Watchdog.Interval).Start()
		},
		newHost: func(version string) fingerprint.Provider {
			return fingerprint.NewHostProvider(version)
		},
	}
}

// close drains the access log and releases the store.
func (a *app) close() {
	if a.client != nil {
		_ = a.client.Close(context.Background())
		a.client = nil
	}
	if a.svc != nil {
		if err := a.svc.Close(); err != nil {
			logging.Warnf("closing services: %v", err)
		}
		a.svc = nil
	}
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
}

// loadConfig reads and validates the configuration and applies the logging
// and language settings.
func (a *app) loadConfig(cmd *cobra.Command) error {
	path, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig[config.Config](cmd, config.Defaults(), path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	logging.SetLevel(cfg.Log.Level)
	if a.verbose {
		logging.SetLevel("debug")
		db.SetDebug(true)
	}
	i18n.Init(cfg.Language)
	return nil
}

// remoteAnnotation marks commands that can run against remote.url.
const remoteAnnotation = "gatekeeper/remote"

func supportsRemote(cmd *cobra.Command) bool {
	return cmd.Annotations[remoteAnnotation] == "true"
}

// setupDefaultServices loads the configuration, starts the watchdog and
// wires the store, the core services and the account client. With
// remote.url set, commands that support it only get an HTTP client.
func (a *app) setupDefaultServices(cmd *cobra.Command, args []string) error {
	if err := a.loadConfig(cmd); err != nil {
		return err
	}
	if a.startWatchdog != nil {
		a.startWatchdog(a.cfg)
	}

	v, _, _ := resolveBuildVersion(nil)
	a.host = a.newHost(v)

	if a.cfg.Remote.URL != "" && supportsRemote(cmd) {
		c, err := client.NewHTTPClient(client.Config{
			BaseURL:   a.cfg.Remote.URL,
			Timeout:   a.cfg.Remote.Timeout,
			UserAgent: "gatekeeper/" + v,
		}, a.host)
		if err != nil {
			return err
		}
		a.client = c
		logging.Debugf("using remote server %s", a.cfg.Remote.URL)
		return nil
	}

	store, err := db.NewStoreFromDSN(a.cfg.Database.Type, a.cfg.Database.Dsn)
	if err != nil {
		return errors.New(i18n.T("error.db_init", err))
	}
	a.store = store

	a.metrics = metrics.New()
	a.svc = core.NewServices(store, a.host, core.Options{
		Observer:        a.metrics,
		SessionTimeout:  a.cfg.Session.Timeout,
		RedeemTimeout:   a.cfg.Session.Timeout,
		LogWriteTimeout: a.cfg.Session.LogWriteTimeout,
	})
	c, err := client.NewLocalClient(a.svc)
	if err != nil {
		return err
	}
	a.client = c
	logging.Debugf("services ready (database %s)", a.cfg.Database.Type)
	return nil
}

// Execute runs the CLI entrypoint. The cmd/gatekeeper main package should
// call this function and handle process exit.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	defer a.close()
	return newRootCmd(a).ExecuteContext(ctx)
}

// NewRootCmd creates a fresh root command with its own state.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gatekeeper",
		Short:         i18n.T("app.short"),
		Long:          i18n.T("app.long"),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupDefaultServices(cmd, args)
		},
	}

	cmd.Version = buildvars.Describe(resolveBuildVersion(nil))

	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file")
	applyDefaultFlags(cmd)

	cmd.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newRedeemCmd(a),
		newStatusCmd(a),
		newProductsCmd(a),
		newKeysCmd(a),
		newServeCmd(a),
		newMaintenanceCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// applyDefaultFlags declares the persistent flags named after config keys so
// LoadConfig can bind them.
func applyDefaultFlags(cmd *cobra.Command) {
	d := config.Defaults()
	pf := cmd.PersistentFlags()
	if pf.Lookup("database.type") == nil {
		pf.String("database.type", d["database.type"].(string), "Database type (sqlite, postgres, mysql)")
	}
	if pf.Lookup("database.dsn") == nil {
		pf.String("database.dsn", d["database.dsn"].(string), "Database connection string (DSN)")
	}
	if pf.Lookup("language") == nil {
		pf.String("language", d["language"].(string), `Output language ("en", "de")`)
	}
	if pf.Lookup("log.level") == nil {
		pf.String("log.level", d["log.level"].(string), "Log level (debug, info, warn, error)")
	}
	if pf.Lookup("remote.url") == nil {
		pf.String("remote.url", "", "Run account commands against this gatekeeper server")
	}
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	// Only proceed if the user has explicitly set the --config flag.
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	// Make sure the user-provided file exists to avoid unwanted behavior.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// resolveBuildVersion prefers link-time values, then module build info.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, found := debug.ReadBuildInfo(); found {
			info = local
		}
	}
	if info != nil {
		if resolvedVersion == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" && resolvedCommit == "dev" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" && resolvedDate == "" {
					resolvedDate = s.Value
				}
			}
		}
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: i18n.T("version.short"),
		Args:  cobra.NoArgs,
		// Printing the version needs neither config nor database.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildvars.Describe(resolveBuildVersion(nil)))
			return err
		},
	}
}
