package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/AyuTrack/internal/identity"
	"github.com/jmerrifield20/AyuTrack/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

const defaultServerURL = "http://localhost:8080"

var (
	serverURL string
	cfgFile     string
	outputJSON  bool
	timeout     time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ayutrack",
	Short: "AyuTrack supply-chain ledger CLI",
	Long: `ayutrack is the command-line interface for an AyuTrack server.

It submits herbal batch records to the ledger, looks up batches and their
journey, renders consumer QR codes, and verifies scanned products.

Custodian credentials are read from ~/.ayutrack/config.yaml:

  server_url: http://localhost:8080
  custodian_id: farm-coop-7
  custodian_secret: ...`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ayutrack")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("ayutrack")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = defaultServerURL
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ayutrack/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default "+defaultServerURL+")")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print raw JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(hashSecretCmd)
}

// newClient builds an SDK client, authenticated when custodian credentials
// are configured.
func newClient() (*client.Client, error) {
	opts := []client.Option{client.WithHTTPClient(newHTTPClient())}
	if id, secret := viper.GetString("custodian_id"), viper.GetString("custodian_secret"); id != "" && secret != "" {
		opts = append(opts, client.WithCredentials(id, secret))
	}
	return client.New(serverURL, opts...)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: timeout}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ok(format string, a ...any)   { color.Green("✓ "+format, a...) }
func warn(format string, a ...any) { color.Yellow("! "+format, a...) }
func fail(format string, a ...any) { color.Red("✗ "+format, a...) }

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ayutrack CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ayutrack %s\n", version)
	},
}

// ── hash-secret ──────────────────────────────────────────────────────────────

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret [secret]",
	Short: "Print the bcrypt hash of a custodian secret for auth.secret_hash",
	Long: `hash-secret prints the bcrypt hash ayutrackd expects in auth.secret_hash.

The secret is read from the first argument, or from stdin when omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var secret string
		if len(args) == 1 {
			secret = args[0]
		} else {
			fmt.Fprint(os.Stderr, "Secret: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read secret: %w", err)
			}
			secret = strings.TrimRight(line, "\r\n")
		}
		if secret == "" {
			return fmt.Errorf("secret must not be empty")
		}
		hash, err := identity.HashSecret(secret)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
