package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tnunamak/tokentorch/internal/api"
	"github.com/tnunamak/tokentorch/internal/config"
)

var loginFlags struct {
	sessionKey string
	orgID      string
	noVerify   bool
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the claude.ai session key and organization ID",
	Long: `Stores the sessionKey cookie from a logged-in claude.ai browser session
and the organization ID shown in the usage page URL. The key goes to the
macOS Keychain or a 0600 credentials file; the organization ID is written
to the config file.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginFlags.sessionKey, "session-key", "", "claude.ai sessionKey cookie value")
	loginCmd.Flags().StringVar(&loginFlags.orgID, "org-id", "", "Organization ID")
	loginCmd.Flags().BoolVar(&loginFlags.noVerify, "no-verify", false, "Skip the test request")
}

func runLogin(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	orgID := strings.TrimSpace(loginFlags.orgID)
	if orgID == "" {
		orgID = e.cfg.OrgID
	}
	if orgID == "" {
		if orgID, err = prompt(in, out, "Organization ID: "); err != nil {
			return err
		}
	}

	key := strings.TrimSpace(loginFlags.sessionKey)
	if key == "" {
		if key, err = promptSecret(in, out, "Session key: "); err != nil {
			return err
		}
	}
	if orgID == "" || key == "" {
		return withCode(2, errors.New("both an organization ID and a session key are required"))
	}

	if !loginFlags.noVerify {
		ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
		defer cancel()
		res, err := api.NewClient(key, orgID).FetchUsage(ctx)
		if errors.Is(err, api.ErrSessionExpired) {
			return withCode(2, err)
		}
		if err != nil {
			return fmt.Errorf("verify credentials: %w", err)
		}
		if res.RefreshedSessionKey != "" {
			key = res.RefreshedSessionKey
		}
	}

	if err := api.SaveSessionKey(key); err != nil {
		return fmt.Errorf("save session key: %w", err)
	}
	if err := config.Save(e.cfg.Path, config.Settings{OrgID: orgID, PollInterval: e.cfg.PollInterval}); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(out, "Logged in. Configuration written to %s\n", e.cfg.Path)
	return nil
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(in, out, label)
	}
	fmt.Fprint(out, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
