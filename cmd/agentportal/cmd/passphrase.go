package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/agentportal/internal/config"
)

var passphraseCmd = &cobra.Command{
	Use:   "passphrase",
	Short: "Change the device passphrase that protects stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		term := newTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
		return withApp(cmd, appDeps{}, func(ctx context.Context, a *app) error {
			if a.cfg.Storage.Backend != config.BackendBBolt {
				return errors.New("the memory backend has no persistent passphrase")
			}
			next, err := term.askSecret(ctx, "New device passphrase")
			if err != nil {
				return err
			}
			confirm, err := term.askSecret(ctx, "Repeat new device passphrase")
			if err != nil {
				return err
			}
			if next != confirm {
				return errors.New("passphrases do not match")
			}
			if err := a.secure.ChangePassphrase(ctx, a.cfg.Storage.DevicePassphrase, next); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Device passphrase changed.")
			fmt.Fprintf(out, "Update storage.device_passphrase or %sDEVICE_PASSPHRASE before the next run.\n", config.EnvPrefix)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(passphraseCmd)
}
