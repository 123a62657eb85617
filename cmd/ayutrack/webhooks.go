package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/AyuTrack/pkg/client"
)

var webhookEvents []string

func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookAddCmd)
	webhookCmd.AddCommand(webhookListCmd)
	webhookCmd.AddCommand(webhookRemoveCmd)

	webhookAddCmd.Flags().StringSliceVar(&webhookEvents, "event",
		[]string{client.EventBatchCommitted}, "event to deliver (repeatable)")
}

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage signed ledger event deliveries (requires custodian credentials)",
}

var webhookAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Subscribe a URL to ledger events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		sub, secret, err := c.Subscribe(context.Background(), args[0], webhookEvents...)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		if outputJSON {
			return printJSON(map[string]any{"subscription": sub, "secret": secret})
		}
		ok("Subscribed %s to %s", sub.URL, strings.Join(sub.Events, ", "))
		fmt.Printf("  ID:     %s\n", sub.ID)
		fmt.Printf("  Secret: %s\n", secret)
		warn("The secret is shown once; deliveries carry its HMAC in X-AyuTrack-Signature")
		return nil
	},
}

var webhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your webhook subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		subs, err := c.Webhooks(context.Background())
		if err != nil {
			return fmt.Errorf("list webhooks: %w", err)
		}
		if outputJSON {
			return printJSON(subs)
		}
		if len(subs) == 0 {
			fmt.Println("No webhook subscriptions.")
			return nil
		}
		t := newTable("ID", "URL", "EVENTS", "CREATED")
		for _, s := range subs {
			t.row(s.ID, s.URL, strings.Join(s.Events, ","), s.CreatedAt.Format("2006-01-02 15:04"))
		}
		return t.flush()
	},
}

var webhookRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a webhook subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Unsubscribe(context.Background(), args[0]); err != nil {
			return fmt.Errorf("unsubscribe: %w", err)
		}
		ok("Removed %s", args[0])
		return nil
	},
}
