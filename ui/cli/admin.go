// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/toeirei/gatekeeper/internal/config"
	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/httpapi"
	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/keypool"
	"github.com/toeirei/gatekeeper/internal/logging"
)

func newProductsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: i18n.T("products.short"),
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: i18n.T("products.add.short"),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.svc.Ledger.AddProduct(cmd.Context(), args[0])
			if err != nil {
				return userError(err)
			}
			printOK(cmd, i18n.T("products.added", p.Name, p.ID))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: i18n.T("products.list.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := a.svc.Ledger.ListProducts(cmd.Context())
			if err != nil {
				return userError(err)
			}
			if len(ps) == 0 {
				printWarn(cmd, i18n.T("products.none"))
				return nil
			}
			for _, p := range ps {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", p.ID, p.Name)
			}
			return nil
		},
	})
	return cmd
}

func newKeysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: i18n.T("keys.short"),
	}

	var productID int64
	var days, count int
	issue := &cobra.Command{
		Use:   "issue",
		Short: i18n.T("keys.issue.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.svc.Ledger.IssueKeys(cmd.Context(), productID, days, count)
			if err != nil {
				return userError(err)
			}
			for _, k := range keys {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), k.KeyValue)
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), okStyle.Render(i18n.T("keys.issued", len(keys))))
			return nil
		},
	}
	issue.Flags().Int64Var(&productID, "product", 0, "Product id")
	issue.Flags().IntVar(&days, "days", 30, "Subscription length in days")
	issue.Flags().IntVarP(&count, "count", "n", 1, "Number of keys")
	_ = issue.MarkFlagRequired("product")

	var listProduct int64
	list := &cobra.Command{
		Use:   "list",
		Short: i18n.T("keys.list.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.svc.Ledger.ListAvailableKeys(cmd.Context(), listProduct)
			if err != nil {
				return userError(err)
			}
			if len(keys) == 0 {
				printWarn(cmd, i18n.T("keys.none"))
				return nil
			}
			for _, k := range keys {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", k.KeyValue, k.DurationDays, dimStyle.Render(fmt.Sprintf("product %d", k.ProductID)))
			}
			return nil
		},
	}
	list.Flags().Int64Var(&listProduct, "product", 0, "Only keys of this product id")

	export := &cobra.Command{
		Use:   "export [output-file]",
		Short: i18n.T("keys.export.short"),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var out string
			if len(args) == 0 {
				out = fmt.Sprintf("gatekeeper-keys-%s.json.zst", time.Now().Format("2006-01-02"))
			} else {
				out = args[0]
				if !strings.HasSuffix(out, ".zst") {
					out += ".zst"
				}
			}
			data, err := keypool.Export(cmd.Context(), a.store, time.Now())
			if err != nil {
				return err
			}
			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("could not create file: %w", err)
			}
			if err := keypool.Write(data, f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			printOK(cmd, i18n.T("keys.exported", len(data.Keys), out))
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <input-file>",
		Short: i18n.T("keys.import.short"),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("could not open file: %w", err)
			}
			defer func() { _ = f.Close() }()
			data, err := keypool.Read(f)
			if err != nil {
				return err
			}
			imported, skipped, err := keypool.Import(cmd.Context(), a.store, data, time.Now())
			if err != nil {
				if errors.Is(err, db.ErrDuplicate) {
					return userError(err)
				}
				return err
			}
			if skipped > 0 {
				logging.Infof("skipped %d keys already in the pool", skipped)
			}
			printOK(cmd, i18n.T("keys.imported", imported, args[0]))
			return nil
		},
	}

	cmd.AddCommand(issue, list, export, importCmd)
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: i18n.T("serve.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := a.cfg.HTTP.Addr
			srv := httpapi.New(a.svc, a.metrics.Handler())
			printOK(cmd, i18n.T("serve.listening", addr))
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().String("http.addr", config.Defaults()["http.addr"].(string), "Listen address")
	return cmd
}

func newMaintenanceCmd(a *app) *cobra.Command {
	var timeout int
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: i18n.T("maintenance.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
				defer cancel()
			}
			if err := db.RunDBMaintenance(ctx, a.cfg.Database.Type, a.cfg.Database.Dsn); err != nil {
				return err
			}
			printOK(cmd, i18n.T("maintenance.done"))
			return nil
		},
	}
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Timeout in seconds (0 means the built-in limit)")
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: i18n.T("config.write.short"),
		// Writing the configuration must work while the database is unreachable.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}
	var system bool
	write := &cobra.Command{
		Use:   "write",
		Short: i18n.T("config.write.short"),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteConfigFile(&a.cfg, system)
			if err != nil {
				return err
			}
			printOK(cmd, i18n.T("config.written", path))
			return nil
		},
	}
	write.Flags().BoolVar(&system, "system", false, "Write the system-wide file instead of the user file")
	cmd.AddCommand(write)
	return cmd
}
