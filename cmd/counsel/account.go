package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/voicecounsel/internal/api"
	"github.com/zhouzirui/voicecounsel/internal/auth"
)

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email (required)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "account password (read from stdin when omitted)")
	_ = cmd.MarkFlagRequired("email")
}

// resolve fills a missing password from the first line of stdin.
func (f *credentialFlags) resolve(in io.Reader) (string, string, error) {
	email := strings.TrimSpace(f.email)
	password := f.password
	if password == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if email == "" || password == "" {
		return "", "", errors.New("email and password are required")
	}
	return email, password, nil
}

func newLoginCmd(a *app) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := creds.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			session, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return errors.New(api.UserMessage(err))
			}
			return a.remember(cmd, session)
		},
	}
	creds.bind(cmd)
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var creds credentialFlags
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := creds.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			session, err := a.client.Signup(cmd.Context(), email, password)
			if err != nil {
				return errors.New(api.UserMessage(err))
			}
			return a.remember(cmd, session)
		},
	}
	creds.bind(cmd)
	return cmd
}

func (a *app) remember(cmd *cobra.Command, session auth.Session) error {
	if err := a.store.Save(session); err != nil {
		return err
	}
	user := session.User()
	fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (session valid until %s)\n",
		user.Email, session.ExpiresAt().Local().Format(time.DateTime))
	return nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.session()
			if err != nil {
				return err
			}
			user := session.User()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Email:      %s\n", user.Email)
			if !user.LoginTime.IsZero() {
				fmt.Fprintf(out, "Signed in:  %s\n", user.LoginTime.Local().Format(time.DateTime))
			}
			fmt.Fprintf(out, "Expires:    %s\n", session.ExpiresAt().Local().Format(time.DateTime))
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the initial counseling is done",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.session()
			if err != nil {
				return err
			}
			status, err := a.client.CounselingStatus(cmd.Context(), session)
			if err != nil {
				return errors.New(api.UserMessage(err))
			}

			out := cmd.OutOrStdout()
			if !status.HasInitialCounseling {
				fmt.Fprintln(out, "Initial counseling: not started. Run `counsel talk` to begin.")
				return nil
			}
			fmt.Fprintln(out, "Initial counseling: done")
			if status.CounselingDate != "" {
				fmt.Fprintf(out, "Date:       %s\n", status.CounselingDate)
			}
			if status.CounselingID != "" {
				fmt.Fprintf(out, "Record:     %s\n", status.CounselingID)
			}
			return nil
		},
	}
}
