package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/AyuTrack/pkg/client"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyEncodeCmd)
	keyCmd.AddCommand(keyDecodeCmd)
}

type table struct{ w *tabwriter.Writer }

func newTable(headers ...any) *table {
	t := &table{w: tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)}
	t.row(headers...)
	return t
}

func (t *table) row(cols ...any) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(t.w, "\t")
		}
		fmt.Fprint(t.w, c)
	}
	fmt.Fprintln(t.w)
}

func (t *table) flush() error { return t.w.Flush() }

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify [payload.json|-]",
	Short: "Verify a scanned QR payload, or the whole chain when no payload is given",
	Long: `verify checks a consumer QR payload against the ledger. Pass the JSON
decoded from the QR code as a file, or "-" to read stdin.

Without arguments it asks the server to recheck every hash link.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()

		if len(args) == 0 {
			res, err := c.VerifyChain(ctx)
			if err != nil {
				return fmt.Errorf("verify chain: %w", err)
			}
			if outputJSON {
				return printJSON(res)
			}
			if !res.Valid {
				fail("Chain integrity check failed: %s", res.Error)
				return fmt.Errorf("chain invalid")
			}
			ok("Chain verified")
			return nil
		}

		var raw []byte
		if args[0] == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		res, err := c.VerifyPayload(ctx, raw)
		if err != nil {
			return fmt.Errorf("verify payload: %w", err)
		}
		if outputJSON {
			return printJSON(res)
		}
		if !res.Verified {
			fail("Not verified: %s", res.Reason)
			return fmt.Errorf("payload not verified")
		}
		ok("Authentic product")
		fmt.Println()
		printEntry(res.Entry)
		fmt.Printf("Transaction: %s\n", res.TransactionHash)
		return nil
	},
}

// ── status / entries ─────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the server's network and chain status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		s, err := c.Status(context.Background())
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if outputJSON {
			return printJSON(s)
		}
		fmt.Printf("Server:     %s\n", serverURL)
		fmt.Printf("Peers:      %d\n", s.PeerCount)
		fmt.Printf("Entries:    %d\n", s.Entries)
		if s.Root != "" {
			fmt.Printf("Root:       %s\n", s.Root)
		}
		if s.LastBlockTime != nil {
			fmt.Printf("Last block: %s\n", formatMillis(*s.LastBlockTime))
		}
		if s.ChainValid {
			ok("Chain valid")
		} else {
			fail("Chain invalid")
		}
		return nil
	},
}

var (
	entriesOffset int
	entriesLimit  int
)

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "List ledger entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, total, err := c.Entries(context.Background(), entriesOffset, entriesLimit)
		if err != nil {
			return fmt.Errorf("list entries: %w", err)
		}
		if outputJSON {
			return printJSON(entries)
		}
		t := newTable("INDEX", "BATCH", "PRODUCT", "STAGE", "HASH")
		for _, e := range entries {
			t.row(e.Index, e.Record.BatchNumber, e.Record.ProductType, stageLabel(e.Record.Stage), shortHash(e.Hash))
		}
		if err := t.flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d of %d entries\n", len(entries), total)
		return nil
	},
}

func init() {
	entriesCmd.Flags().IntVar(&entriesOffset, "offset", 0, "first entry index")
	entriesCmd.Flags().IntVar(&entriesLimit, "limit", 50, "maximum entries to list (1-500)")
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16] + "…"
}

// ── watch ────────────────────────────────────────────────────────────────────

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream ledger entries as they are committed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(os.Stderr, "Watching %s (Ctrl-C to stop)\n", serverURL)
		return c.Watch(ctx, func(e client.Entry) {
			if outputJSON {
				_ = printJSON(e)
				return
			}
			ok("#%d %s %s %s", e.Index, e.Record.BatchNumber, stageLabel(e.Record.Stage), shortHash(e.Hash))
		})
	},
}

// ── key ──────────────────────────────────────────────────────────────────────

var keyRef string

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Wrap and unwrap possession keys for transport",
}

var keyEncodeCmd = &cobra.Command{
	Use:   "encode <key>",
	Short: "Wrap a possession key in an envelope bound to --ref",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		env, err := c.EncodeKey(context.Background(), args[0], keyRef)
		if err != nil {
			return fmt.Errorf("encode key: %w", err)
		}
		if outputJSON {
			return printJSON(env)
		}
		fmt.Println(env.Envelope)
		fmt.Fprintf(os.Stderr, "tag: %s\n", env.Tag)
		return nil
	},
}

var keyDecodeCmd = &cobra.Command{
	Use:   "decode <envelope>",
	Short: "Recover a possession key from an envelope bound to --ref",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		key, err := c.DecodeKey(context.Background(), args[0], keyRef)
		if err != nil {
			return fmt.Errorf("decode key: %w", err)
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	keyCmd.PersistentFlags().StringVar(&keyRef, "ref", "", "reference hash, usually the entry hash the key was minted for")
}
