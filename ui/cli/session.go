// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/toeirei/gatekeeper/client"
	"github.com/toeirei/gatekeeper/internal/core"
	"github.com/toeirei/gatekeeper/internal/i18n"
	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/security"
)

// ErrSubscriptionInactive is returned by login when the credentials were
// accepted but no subscription is active, so callers get a non-zero exit.
var ErrSubscriptionInactive = errors.New("subscription inactive")

const dateLayout = "2006-01-02 15:04 MST"

// userError translates a core error into the message shown to the user.
func userError(err error) error {
	switch {
	case core.IsTransient(err):
		logging.Debugf("transient failure: %v", err)
		return errors.New(i18n.T("error.transient"))
	case errors.Is(err, core.ErrInvalidCredentials):
		return errors.New(i18n.T("login.invalid_credentials"))
	case errors.Is(err, core.ErrHardwareMismatch):
		return errors.New(i18n.T("login.hardware_mismatch"))
	case errors.Is(err, core.ErrAlreadyRedeemed):
		return errors.New(i18n.T("error.already_redeemed"))
	case errors.Is(err, core.ErrInvalidKey):
		return errors.New(i18n.T("error.invalid_key"))
	case errors.Is(err, core.ErrUsernameTaken):
		return errors.New(i18n.T("error.username_taken"))
	case errors.Is(err, core.ErrAccountNotFound):
		return errors.New(i18n.T("error.account_not_found"))
	case errors.Is(err, core.ErrInvalidInput):
		detail := err.Error()
		var r *core.RejectedError
		if errors.As(err, &r) {
			detail = r.Reason.Error()
		}
		detail = strings.TrimPrefix(detail, core.ErrInvalidInput.Error()+": ")
		return errors.New(i18n.T("error.invalid_input", detail))
	default:
		return err
	}
}

// credentials reads username and password from flags or prompts.
func (a *app) credentials(cmd *cobra.Command, username, password string) (string, security.Secret, error) {
	user, err := a.value(cmd, username, i18n.T("prompt.username"))
	if err != nil {
		return "", nil, err
	}
	pw, err := a.secret(cmd, password, i18n.T("prompt.password"))
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(user), pw, nil
}

// authenticate logs in through the account client.
func (a *app) authenticate(cmd *cobra.Command, username, password string) (client.Session, error) {
	user, pw, err := a.credentials(cmd, username, password)
	if err != nil {
		return client.Session{}, err
	}
	defer pw.Zero()
	res, err := a.client.Login(cmd.Context(), user, pw)
	if err != nil {
		return client.Session{}, userError(err)
	}
	return res, nil
}

// productName resolves the name of productID from the account's
// subscriptions.
func (a *app) productName(cmd *cobra.Command, accountID, productID int64) string {
	subs, err := a.client.Subscriptions(cmd.Context(), accountID)
	if err == nil {
		for _, s := range subs {
			if s.ProductID == productID && s.ProductName != "" {
				return s.ProductName
			}
		}
	}
	return fmt.Sprintf("#%d", productID)
}

var remoteCapable = map[string]string{remoteAnnotation: "true"}

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:         "login",
		Annotations: remoteCapable,
		Short:       i18n.T("login.short"),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.authenticate(cmd, username, password)
			if err != nil {
				return err
			}
			printOK(cmd, i18n.T("login.welcome", res.Username))
			switch {
			case res.Subscription == nil:
				printWarn(cmd, i18n.T("login.no_subscription"))
				return ErrSubscriptionInactive
			case res.Expired:
				printWarn(cmd, i18n.T("login.expired", res.Subscription.ExpiresAt.Format(dateLayout)))
				return ErrSubscriptionInactive
			default:
				printOK(cmd, i18n.T("login.active", res.Subscription.ExpiresAt.Format(dateLayout)))
				return nil
			}
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var username, password, confirm, key string
	cmd := &cobra.Command{
		Use:         "register",
		Annotations: remoteCapable,
		Short:       i18n.T("register.short"),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, pw, err := a.credentials(cmd, username, password)
			if err != nil {
				return err
			}
			defer pw.Zero()
			conf, err := a.secret(cmd, confirm, i18n.T("prompt.confirm"))
			if err != nil {
				return err
			}
			defer conf.Zero()
			if !pw.Empty() && !conf.Empty() && !pw.Equal(conf) {
				return errors.New(i18n.T("register.password_mismatch"))
			}
			id, err := a.client.Register(cmd.Context(), client.Registration{
				Username: user,
				Password: pw,
				Confirm:  conf,
				Key:      key,
			})
			if err != nil {
				return userError(err)
			}
			printOK(cmd, i18n.T("register.ok", user, id))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "Password confirmation (prompted when omitted)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "License key to redeem")
	return cmd
}

func newRedeemCmd(a *app) *cobra.Command {
	var username, password, key string
	cmd := &cobra.Command{
		Use:         "redeem",
		Annotations: remoteCapable,
		Short:       i18n.T("redeem.short"),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("--key is required")
			}
			res, err := a.authenticate(cmd, username, password)
			if err != nil {
				return err
			}
			sub, err := a.client.Redeem(cmd.Context(), res.AccountID, strings.TrimSpace(key))
			if err != nil {
				return userError(err)
			}
			name := a.productName(cmd, res.AccountID, sub.ProductID)
			printOK(cmd, i18n.T("redeem.ok", name, sub.ExpiresAt.Format(dateLayout)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "License key to redeem")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:         "status",
		Annotations: remoteCapable,
		Short:       i18n.T("status.short"),
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.authenticate(cmd, username, password)
			if err != nil {
				return err
			}
			subs, err := a.client.Subscriptions(cmd.Context(), res.AccountID)
			if err != nil {
				return userError(err)
			}
			if len(subs) == 0 {
				printWarn(cmd, i18n.T("status.none"))
				return nil
			}
			width := len(i18n.T("status.header_product"))
			for _, s := range subs {
				if len(s.ProductName) > width {
					width = len(s.ProductName)
				}
			}
			col := lipgloss.NewStyle().Width(width + 2)
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, col.Render(headerStyle.Render(i18n.T("status.header_product")))+headerStyle.Render(i18n.T("status.header_expires")))
			for _, s := range subs {
				_, _ = fmt.Fprintln(out, col.Render(s.ProductName)+s.ExpiresAt.Format(dateLayout))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted)")
	return cmd
}
