package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/agentportal/login"
	"github.com/jmcleod/agentportal/session"
)

var (
	loginUsername   string
	loginBiometric  bool
	enrollBiometric bool
	skipBiometric   bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the CRM with username and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if enrollBiometric && skipBiometric {
			return errors.New("--enable-biometrics and --no-biometrics are mutually exclusive")
		}
		term := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())

		var prompt login.Prompter = term
		switch {
		case enrollBiometric:
			prompt = fixedAnswer(true)
		case skipBiometric:
			prompt = fixedAnswer(false)
		}

		return withApp(cmd, appDeps{prompt: prompt, gate: term}, func(ctx context.Context, a *app) error {
			auth, err := a.orchestrator()
			if err != nil {
				return err
			}

			var profile *session.UserProfile
			if loginBiometric {
				profile, err = auth.BiometricLogin(ctx)
			} else {
				profile, err = interactiveLogin(ctx, auth, term)
			}
			if err != nil {
				return loginFailure(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(profile))
			if a.sessions.State().BiometricEnabled {
				fmt.Fprintln(cmd.OutOrStdout(), "Biometric login is enabled.")
			}
			return nil
		})
	},
}

func interactiveLogin(ctx context.Context, auth *login.Orchestrator, term *terminal) (*session.UserProfile, error) {
	username := loginUsername
	var err error
	if username == "" {
		if username, err = term.ask(ctx, "Username"); err != nil {
			return nil, err
		}
	}
	password, err := term.askSecret(ctx, "Password")
	if err != nil {
		return nil, err
	}
	if username == "" || password == "" {
		return nil, errors.New("Username and password are required.")
	}
	return auth.Login(ctx, username, password)
}

// loginFailure turns login errors into the messages the agent sees.
func loginFailure(err error) error {
	switch {
	case errors.Is(err, login.ErrBiometricRejected):
		return errors.New("Authentication Failed: Biometric authentication failed.")
	case errors.Is(err, login.ErrNoBiometricCredentials):
		return errors.New("Biometric Error: Stored credentials not found. Please log in manually.")
	}
	return fmt.Errorf("Login Failed: %w", err)
}

func displayName(p *session.UserProfile) string {
	if p == nil {
		return "unknown user"
	}
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.FirstName != "" || p.LastName != "":
		return trimJoin(p.FirstName, p.LastName)
	case p.Username != "":
		return p.Username
	}
	return p.UserID
}

func trimJoin(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out; biometric enrollment is kept",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appDeps{}, func(ctx context.Context, a *app) error {
			var err error
			if a.auth != nil {
				err = a.auth.Logout(ctx)
			} else {
				err = errors.Join(
					a.sessions.SetSession(ctx, false, nil, nil),
					a.sessions.ClearSession(ctx),
				)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "CRM username (prompted when empty)")
	loginCmd.Flags().BoolVar(&loginBiometric, "biometric", false, "Log in with the enrolled biometric credential")
	loginCmd.Flags().BoolVar(&enrollBiometric, "enable-biometrics", false, "Enable biometric login without asking")
	loginCmd.Flags().BoolVar(&skipBiometric, "no-biometrics", false, "Do not offer biometric login")
}
