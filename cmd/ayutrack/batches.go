package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/AyuTrack/internal/batch"
	"github.com/jmerrifield20/AyuTrack/internal/geo"
	"github.com/jmerrifield20/AyuTrack/pkg/client"
)

func init() {
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(qrCmd)
}

// ── append ───────────────────────────────────────────────────────────────────

var (
	appendProduct  string
	appendQuantity float64
	appendNumber   string
	appendStage    string
	appendKey      string
	appendKeyFile  string
	appendLat      float64
	appendLng      float64
	appendAddress  string
	appendData     []string
)

var appendCmd = &cobra.Command{
	Use:   "append",
	Short: "Submit a batch record to the ledger",
	Long: `append submits a batch record and prints the possession key that
authorises the next append.

Every append after the first must present the key returned by the previous
one, either with --key or --key-file. The new key is shown once; keep it.

  ayutrack append --product Ashwagandha --quantity 250 --stage HARVESTING
  ayutrack append --product Ashwagandha --quantity 250 --stage PROCESSING \
      --batch ASH-2024-001-PROCESSING --key-file ~/.ayutrack/next.key`,
	RunE: runAppend,
}

func init() {
	f := appendCmd.Flags()
	f.StringVar(&appendProduct, "product", "", "product type, e.g. Ashwagandha")
	f.Float64Var(&appendQuantity, "quantity", 0, "batch quantity")
	f.StringVar(&appendNumber, "batch", "", "batch number (generated when empty)")
	f.StringVar(&appendStage, "stage", "", "supply-chain stage, e.g. HARVESTING")
	f.StringVar(&appendKey, "key", "", "possession key from the previous append")
	f.StringVar(&appendKeyFile, "key-file", "", "file holding the possession key; rewritten with the new key")
	f.Float64Var(&appendLat, "lat", 0, "latitude")
	f.Float64Var(&appendLng, "lng", 0, "longitude")
	f.StringVar(&appendAddress, "address", "", "free-text address")
	f.StringSliceVar(&appendData, "data", nil, "stage data as key=value, repeatable")

	_ = appendCmd.MarkFlagRequired("product")
	_ = appendCmd.MarkFlagRequired("quantity")
}

func runAppend(cmd *cobra.Command, args []string) error {
	stage := batch.Stage(strings.ToUpper(appendStage))
	if !stage.Valid() {
		return fmt.Errorf("unknown stage %q", appendStage)
	}

	key := strings.TrimSpace(appendKey)
	if key == "" && appendKeyFile != "" {
		b, err := os.ReadFile(appendKeyFile)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("read key file: %w", err)
		}
		key = strings.TrimSpace(string(b))
	}

	rec := client.Record{
		ProductType: appendProduct,
		Quantity:    appendQuantity,
		BatchNumber: appendNumber,
		Stage:       string(stage),
	}
	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
		rec.Location = &client.Location{Latitude: appendLat, Longitude: appendLng, Address: appendAddress}
	}
	if len(appendData) > 0 {
		rec.StageData = make(map[string]string, len(appendData))
		for _, kv := range appendData {
			k, v, found := strings.Cut(kv, "=")
			if !found {
				return fmt.Errorf("--data %q: expected key=value", kv)
			}
			rec.StageData[k] = v
		}
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	res, err := c.AppendBatch(context.Background(), rec, key)
	if err != nil {
		return fmt.Errorf("append batch: %w", err)
	}

	if appendKeyFile != "" {
		if err := os.WriteFile(appendKeyFile, []byte(res.NextKey+"\n"), 0o600); err != nil {
			return fmt.Errorf("write key file: %w", err)
		}
	}
	if outputJSON {
		return printJSON(res)
	}

	ok("Batch committed")
	fmt.Println()
	fmt.Printf("  Index:        %d\n", res.Entry.Index)
	fmt.Printf("  Batch:        %s\n", res.Entry.Record.BatchNumber)
	fmt.Printf("  Hash:         %s\n", res.Entry.Hash)
	fmt.Printf("  Endorsements: %d\n", len(res.Entry.Endorsements))
	fmt.Printf("  Transaction:  %s\n\n", res.TransactionHash)
	if appendKeyFile != "" {
		fmt.Printf("Next key written to %s\n", appendKeyFile)
	} else {
		warn("Next key (shown once): %s", res.NextKey)
	}
	if res.KeyEnvelope != "" {
		fmt.Printf("Key envelope: %s\n", res.KeyEnvelope)
	}
	return nil
}

// ── get / history ────────────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get <batch-number>",
	Short: "Show the latest ledger entry for a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		e, err := c.FindBatch(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("find batch: %w", err)
		}
		if outputJSON {
			return printJSON(e)
		}
		printEntry(e)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <batch-number>",
	Short: "Show every ledger entry of a batch, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		entries, err := c.History(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		if outputJSON {
			return printJSON(entries)
		}
		w := newTable("INDEX", "BATCH", "STAGE", "TIME", "LOCATION")
		for _, e := range entries {
			loc := ""
			if e.Record.Location != nil {
				loc = placeLabel(*e.Record.Location)
			}
			w.row(e.Index, e.Record.BatchNumber, stageLabel(e.Record.Stage), formatMillis(e.Timestamp), loc)
		}
		return w.flush()
	},
}

func printEntry(e *client.Entry) {
	fmt.Printf("Index:     %d\n", e.Index)
	fmt.Printf("Batch:     %s\n", e.Record.BatchNumber)
	fmt.Printf("Product:   %s (%g)\n", e.Record.ProductType, e.Record.Quantity)
	if e.Record.Stage != "" {
		fmt.Printf("Stage:     %s\n", stageLabel(e.Record.Stage))
	}
	fmt.Printf("Time:      %s\n", formatMillis(e.Timestamp))
	fmt.Printf("Hash:      %s\n", e.Hash)
	fmt.Printf("Previous:  %s\n", e.PreviousHash)
	fmt.Printf("Peers:     %d endorsements\n", len(e.Endorsements))
	if len(e.LocationTrail) > 0 {
		fmt.Println("Journey:")
		for _, p := range e.LocationTrail {
			fmt.Printf("  %-16s %s\n", stageLabel(p.Stage), placeLabel(p.Location))
		}
	}
}

func stageLabel(s string) string {
	if s == "" {
		return "-"
	}
	return batch.Stage(s).Label()
}

// placeLabel prints an address, falling back to coordinates. The server's
// stand-in for an unknown position prints as "unknown".
func placeLabel(loc client.Location) string {
	if geo.IsPlaceholder(batch.Location{Latitude: loc.Latitude, Longitude: loc.Longitude, Address: loc.Address}) {
		return "unknown"
	}
	if loc.Address != "" {
		return loc.Address
	}
	return fmt.Sprintf("%.4f, %.4f", loc.Latitude, loc.Longitude)
}

// ── qr ───────────────────────────────────────────────────────────────────────

var (
	qrOut  string
	qrSize int
)

var qrCmd = &cobra.Command{
	Use:   "qr <batch-number>",
	Short: "Print a batch's consumer payload, or save its QR code with --out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		if qrOut == "" {
			p, err := c.Payload(ctx, args[0])
			if err != nil {
				return fmt.Errorf("payload: %w", err)
			}
			return printJSON(p)
		}
		png, err := c.QRCode(ctx, args[0], qrSize)
		if err != nil {
			return fmt.Errorf("qr code: %w", err)
		}
		if err := os.WriteFile(qrOut, png, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", qrOut, err)
		}
		ok("QR code written to %s", qrOut)
		return nil
	},
}

func init() {
	qrCmd.Flags().StringVar(&qrOut, "out", "", "write the QR code PNG to this file")
	qrCmd.Flags().IntVar(&qrSize, "size", 0, "PNG size in pixels (64-1024)")
}
