package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/greg-hellings/mediscan/pkg/prompt"
	"github.com/greg-hellings/mediscan/pkg/repository"
	"github.com/greg-hellings/mediscan/pkg/session"
	"github.com/spf13/cobra"
)

// credential flags shared by signup and login
type credentialFlags struct {
	name     string
	email    string
	password string
}

func newSignupCmd(a *app) *cobra.Command {
	var cf credentialFlags
	c := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Long: strings.TrimSpace(`
Create an account on the MediScan service. Missing values are prompted for;
the password is read without echo on a terminal.

Examples:
  mediscan signup
  mediscan signup --name "Jane Doe" --email jane@example.com`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
			if err := askMissing(p, &cf, true); err != nil {
				return err
			}
			token, err := a.client.Signup(cmd.Context(), repository.Signup{
				Name:     cf.name,
				Email:    cf.email,
				Password: cf.password,
			})
			if err != nil {
				return err
			}
			return a.startSession(cmd.OutOrStdout(), cmd.ErrOrStderr(), token, "Account created. Logged in as "+strings.TrimSpace(cf.email)+".")
		},
	}
	c.Flags().StringVar(&cf.name, "name", "", "Full name")
	c.Flags().StringVar(&cf.email, "email", "", "Email address")
	c.Flags().StringVar(&cf.password, "password", "", "Password (prompted when omitted)")
	return c
}

func newLoginCmd(a *app) *cobra.Command {
	var cf credentialFlags
	c := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := prompt.New(cmd.InOrStdin(), cmd.OutOrStdout())
			if err := askMissing(p, &cf, false); err != nil {
				return err
			}
			return a.login(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cf)
		},
	}
	c.Flags().StringVar(&cf.email, "email", "", "Email address")
	c.Flags().StringVar(&cf.password, "password", "", "Password (prompted when omitted)")
	return c
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.logout(cmd.OutOrStdout())
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service URL and session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printStatus(cmd.OutOrStdout())
		},
	}
}

// askMissing prompts for every credential not given as a flag.
func askMissing(p *prompt.Prompter, cf *credentialFlags, withName bool) error {
	var err error
	if withName && strings.TrimSpace(cf.name) == "" {
		if cf.name, err = p.Line("Name"); err != nil {
			return fmt.Errorf("read name: %w", err)
		}
	}
	if strings.TrimSpace(cf.email) == "" {
		if cf.email, err = p.Line("Email"); err != nil {
			return fmt.Errorf("read email: %w", err)
		}
	}
	if cf.password == "" {
		if cf.password, err = p.Password("Password"); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}
	return nil
}

// login exchanges credentials for a token and starts a session.
func (a *app) login(ctx context.Context, out, errOut io.Writer, cf credentialFlags) error {
	token, err := a.client.Login(ctx, repository.Credentials{
		Email:    cf.email,
		Password: cf.password,
	})
	if err != nil {
		return err
	}
	return a.startSession(out, errOut, token, "Logged in as "+strings.TrimSpace(cf.email)+".")
}

// startSession stores token. A session that could not be saved still
// works for the rest of this process, so it is reported as a warning.
func (a *app) startSession(out, errOut io.Writer, token, message string) error {
	if err := a.session.Login(token); err != nil {
		if !a.session.Authenticated() {
			return err
		}
		fmt.Fprintf(errOut, "Warning: %v; the session will not outlive this process\n", err)
	}
	fmt.Fprintln(out, message)
	fmt.Fprintln(out, "Next: mediscan upload <file>")
	return nil
}

func (a *app) logout(out io.Writer) error {
	wasEnv := a.session.Source() == session.SourceEnv
	if err := a.session.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(out, "Logged out.")
	if wasEnv {
		fmt.Fprintf(out, "Unset %s to stay logged out.\n", session.EnvToken)
	}
	return nil
}

func (a *app) printStatus(out io.Writer) error {
	fmt.Fprintf(out, "Server:  %s\n", a.client.BaseURL())
	fmt.Fprintf(out, "Session: %s\n", a.session.State())
	if !a.session.Authenticated() {
		return nil
	}
	fmt.Fprintf(out, "Source:  %s\n", a.session.Source())
	fmt.Fprintf(out, "Token:   %s\n", session.Redact(a.session.AccessToken()))
	if exp := a.session.Expiry(); !exp.IsZero() {
		when := humanize.Time(exp)
		if exp.Before(time.Now()) {
			when += " (expired; the service will reject it)"
		}
		fmt.Fprintf(out, "Expires: %s\n", when)
	}
	return nil
}
