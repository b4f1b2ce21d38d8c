package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agenciesCmd = &cobra.Command{
	Use:   "agencies",
	Short: "List agencies visible to the signed-in agent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appDeps{}, func(ctx context.Context, a *app) error {
			agencies, err := a.crm.ListAgencies(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSONOut(out, agencies)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, ag := range agencies {
				fmt.Fprintf(tw, "%s\t%s\n", ag.ID, ag.Name)
			}
			return tw.Flush()
		})
	},
}

var accountCmd = &cobra.Command{
	Use:   "account <id>",
	Short: "Show one account record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, appDeps{}, func(ctx context.Context, a *app) error {
			acct, err := a.crm.Account(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSONOut(out, acct)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Id\t%s\n", acct.ID)
			fmt.Fprintf(tw, "Name\t%s\n", acct.Name)
			if acct.Type != "" {
				fmt.Fprintf(tw, "Type\t%s\n", acct.Type)
			}
			if acct.Phone != "" {
				fmt.Fprintf(tw, "Phone\t%s\n", acct.Phone)
			}
			if acct.Website != "" {
				fmt.Fprintf(tw, "Website\t%s\n", acct.Website)
			}
			if addr := acct.BillingAddress; addr != nil {
				fmt.Fprintf(tw, "Billing\t%s %s %s %s\n", deref(addr.Street), deref(addr.City), deref(addr.State), deref(addr.PostalCode))
			}
			return tw.Flush()
		})
	},
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func init() {
	rootCmd.AddCommand(agenciesCmd)
	rootCmd.AddCommand(accountCmd)
	agenciesCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	accountCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
}
