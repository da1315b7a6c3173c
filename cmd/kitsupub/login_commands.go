package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"kitsupub/internal/session"
)

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var host string
	var user string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the tracking server and store an access token",
		Long: `Log in with email and password. Only the resulting access token is stored
in paths.settings_file; the password is never written to disk.

The password is read from the first line of stdin, so it can be piped:

  echo "$PASSWORD" | kitsupub login --user artist@studio.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			saved, loadErr := session.LoadSettings(cfg.Paths.SettingsFile)
			if loadErr != nil && !errors.Is(loadErr, session.ErrNoSettings) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: ignoring saved settings: %v\n", loadErr)
			}
			host = firstNonEmpty(host, cfg.Tracker.Host, saved.Host)
			user = firstNonEmpty(user, saved.Username)
			if host == "" {
				return errors.New("tracker host is required (use --host, tracker.host or KITSU_HOST)")
			}
			if user == "" {
				return errors.New("user is required (use --user)")
			}

			if !ctx.JSONMode() {
				fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", user)
			}
			password, err := readLine(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if !ctx.JSONMode() {
				fmt.Fprintln(cmd.OutOrStdout())
			}

			sess, err := ctx.newSession(logger)
			if err != nil {
				return err
			}
			if err := sess.Connect(cmd.Context(), host, user, password); err != nil {
				return err
			}
			name := user
			if u := sess.User(); u != nil {
				name = u.DisplayName()
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"connected": true, "host": host, "user": name})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s\n", host, name)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Tracker URL (defaults to tracker.host or the saved host)")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Login email (defaults to the saved username)")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			sess, err := ctx.newSession(logger)
			if err != nil {
				return err
			}
			if err := sess.Forget(); err != nil {
				return fmt.Errorf("forget session: %w", err)
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{"connected": false})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
