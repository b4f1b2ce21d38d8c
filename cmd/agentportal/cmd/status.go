package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/agentportal/session"
)

var jsonOutput bool

type statusView struct {
	Authenticated    bool       `json:"authenticated"`
	BiometricEnabled bool       `json:"biometric_enabled"`
	User             string     `json:"user,omitempty"`
	Email            string     `json:"email,omitempty"`
	InstanceURL      string     `json:"instance_url,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

func newStatusView(st session.State, ttl time.Duration) statusView {
	v := statusView{Authenticated: st.Authenticated, BiometricEnabled: st.BiometricEnabled}
	if !st.Authenticated {
		return v
	}
	v.User = displayName(st.Profile)
	if st.Profile != nil {
		v.Email = st.Profile.Email
	}
	if st.Token != nil {
		v.InstanceURL = st.Token.InstanceURL
		if exp, err := st.Token.ExpiresAt(ttl); err == nil {
			v.ExpiresAt = &exp
		}
	}
	return v
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appDeps{}, func(ctx context.Context, a *app) error {
			v := newStatusView(a.sessions.State(), a.sessions.TokenTTL())
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSONOut(out, v)
			}
			if v.Authenticated {
				fmt.Fprintf(out, "Logged in as %s", v.User)
				if v.Email != "" {
					fmt.Fprintf(out, " <%s>", v.Email)
				}
				fmt.Fprintln(out)
				if v.ExpiresAt != nil {
					fmt.Fprintf(out, "Session valid until %s\n", v.ExpiresAt.Local().Format(time.RFC1123))
				}
			} else {
				fmt.Fprintln(out, "Not logged in.")
			}
			fmt.Fprintf(out, "Biometric login: %s\n", onOff(v.BiometricEnabled))
			return nil
		})
	},
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

var biometricCmd = &cobra.Command{
	Use:   "biometric",
	Short: "Manage biometric login",
}

var biometricEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Store credentials for biometric login",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		term := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
		return withApp(cmd, appDeps{}, func(ctx context.Context, a *app) error {
			username := loginUsername
			var err error
			if username == "" {
				if username, err = term.ask(ctx, "Username"); err != nil {
					return err
				}
			}
			password, err := term.askSecret(ctx, "Password")
			if err != nil {
				return err
			}
			if err := a.sessions.SetBiometricEnabled(ctx, true, username, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Biometric login enabled.")
			return nil
		})
	},
}

var biometricDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove stored biometric credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appDeps{}, func(ctx context.Context, a *app) error {
			if err := a.sessions.SetBiometricEnabled(ctx, false, "", ""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Biometric login disabled.")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(biometricCmd)
	biometricCmd.AddCommand(biometricEnableCmd)
	biometricCmd.AddCommand(biometricDisableCmd)
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	biometricEnableCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "CRM username (prompted when empty)")
}
