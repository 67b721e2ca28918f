// Copyright (c) 2026 ToeiRei
// Gatekeeper - license-gated access control
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/toeirei/gatekeeper/internal/security"
	"golang.org/x/term"
)

var (
	okStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// printOK writes a success line to the command's output.
func printOK(cmd *cobra.Command, msg string) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(msg))
}

// printWarn writes a warning line to the command's output.
func printWarn(cmd *cobra.Command, msg string) {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render(msg))
}

// reader returns the line reader over the command's stdin. It is shared so
// consecutive prompts do not lose buffered input.
func (a *app) reader(cmd *cobra.Command) *bufio.Reader {
	if a.stdin == nil {
		a.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	return a.stdin
}

// readLine prints prompt and reads one line from stdin.
func (a *app) readLine(cmd *cobra.Command, prompt string) (string, error) {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, err := a.reader(cmd).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// value returns flagValue, or prompts for it when empty.
func (a *app) value(cmd *cobra.Command, flagValue, prompt string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return a.readLine(cmd, prompt)
}

// secret returns flagValue as a Secret, or prompts without echo when stdin
// is a terminal.
func (a *app) secret(cmd *cobra.Command, flagValue, prompt string) (security.Secret, error) {
	if flagValue != "" {
		return security.FromString(flagValue), nil
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(cmd.OutOrStdout(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return nil, fmt.Errorf("could not read password: %w", err)
		}
		s := security.FromBytes(b)
		for i := range b {
			b[i] = 0
		}
		return s, nil
	}
	line, err := a.readLine(cmd, prompt)
	if err != nil {
		return nil, err
	}
	return security.FromString(line), nil
}
