package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/starnotary/pkg/client"
	"github.com/jmerrifield20/starnotary/pkg/signature"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

const defaultServerURL = "http://localhost:8080"

var (
	serverURL    string
	keyFile      string
	cfgFile      string
	outputFormat string
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "starctl",
	Short: "starnotary CLI",
	Long: `starctl manages signing keys and talks to a starnotary server.

It can generate a key, request and sign ownership challenges, notarize
stars, and inspect the registry chain.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		home, _ := os.UserHomeDir()
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(filepath.Join(home, ".starctl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("starctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = defaultServerURL
		}
		if keyFile == "" {
			keyFile = viper.GetString("key_file")
		}
		if keyFile == "" {
			keyFile = filepath.Join(home, ".starctl", "key")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.starctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "notary base URL (default "+defaultServerURL+")")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key", "", "private key file (default ~/.starctl/key)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(starsCmd)
	rootCmd.AddCommand(heightCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL, client.WithTimeout(timeout))
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// ── keygen / address ─────────────────────────────────────────────────────────

var keygenScheme string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a signing key and write it to the key file",
	Long: `Generate a new private key. The key file is created with mode 0600 and is
never overwritten; remove it first to rotate.

  starctl keygen --scheme schnorr`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := signature.GenerateKey(signature.Scheme(keygenScheme))
		if err != nil {
			return err
		}
		if err := client.SaveKey(keyFile, key); err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]string{"address": key.Address(), "scheme": string(key.Scheme()), "key_file": keyFile})
		}
		pterm.Success.Printfln("Generated %s key in %s", key.Scheme(), keyFile)
		pterm.Info.Printfln("Address: %s", key.Address())
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenScheme, "scheme", string(signature.SchemeEd25519), "Signature scheme: ed25519 or schnorr")
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the identity address of the configured key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := client.LoadKey(keyFile)
		if err != nil {
			return err
		}
		fmt.Println(key.Address())
		return nil
	},
}

// ── challenge / sign / submit ────────────────────────────────────────────────

var challengeCmd = &cobra.Command{
	Use:   "challenge [identity]",
	Short: "Request an ownership challenge (defaults to the configured key's address)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := identityArg(args)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ch, err := c.RequestChallenge(context.Background(), identity)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(ch)
		}
		fmt.Println(ch.Token)
		pterm.Info.Printfln("Valid until %s (%ds window)", ch.ExpiresAt.Local().Format(time.RFC3339), ch.WindowSeconds)
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message (typically a challenge token) with the configured key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := client.LoadKey(keyFile)
		if err != nil {
			return err
		}
		sig, err := key.Sign([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Println(sig)
		return nil
	},
}

var (
	submitToken     string
	submitSignature string
)

var submitCmd = &cobra.Command{
	Use:   "submit <star-json | @file>",
	Short: "Notarize a star owned by the configured key",
	Long: `Submit a star to the registry.

Without flags the full flow runs: a challenge is requested for the key's
address, signed, and submitted together with the star.

  starctl submit '{"ra":"16h 29m 1.0s","dec":"-26° 29'"'"' 24.9","story":"Antares"}'
  starctl submit @star.json

With --token and --signature a challenge obtained and signed elsewhere is
submitted as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitToken, "token", "", "Challenge token obtained with 'starctl challenge'")
	submitCmd.Flags().StringVar(&submitSignature, "signature", "", "Signature over --token produced with 'starctl sign'")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	star, err := readStar(args[0])
	if err != nil {
		return err
	}
	key, err := client.LoadKey(keyFile)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	spinner, _ := pterm.DefaultSpinner.Start("Notarizing star...")
	var rec *client.Record
	if submitToken != "" || submitSignature != "" {
		if submitToken == "" || submitSignature == "" {
			spinner.Fail("--token and --signature must be given together")
			return errors.New("incomplete manual submission")
		}
		rec, err = c.SubmitStar(ctx, client.SubmitRequest{
			Identity:  key.Address(),
			Token:     submitToken,
			Signature: submitSignature,
			Star:      star,
		})
	} else {
		rec, err = c.Notarize(ctx, key, star)
	}
	if err != nil {
		switch {
		case errors.Is(err, client.ErrChallengeExpired):
			spinner.Fail("Challenge expired; request a new one")
		case errors.Is(err, client.ErrUnauthorized):
			spinner.Fail("Server rejected the challenge or signature")
		default:
			spinner.Fail(err.Error())
		}
		return err
	}
	spinner.Success(fmt.Sprintf("Star committed at height %d", rec.Height))

	if outputFormat == "json" {
		return printJSON(rec)
	}
	printRecord(rec)
	return nil
}

// readStar accepts inline JSON or @path.
func readStar(arg string) (json.RawMessage, error) {
	raw := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read star file: %w", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, errors.New("star must be valid JSON")
	}
	return json.RawMessage(raw), nil
}

// ── queries ──────────────────────────────────────────────────────────────────

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Fetch a record by height or hash",
}

var blockHeightCmd = &cobra.Command{
	Use:   "height <n>",
	Short: "Fetch the record at height n",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("height must be a non-negative integer, got %q", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		rec, err := c.BlockByHeight(context.Background(), n)
		if err != nil {
			return err
		}
		return showRecord(rec)
	},
}

var blockHashCmd = &cobra.Command{
	Use:   "hash <hash>",
	Short: "Fetch the record with the given hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		rec, err := c.BlockByHash(context.Background(), args[0])
		if err != nil {
			return err
		}
		return showRecord(rec)
	},
}

func init() {
	blockCmd.AddCommand(blockHeightCmd)
	blockCmd.AddCommand(blockHashCmd)
}

func showRecord(rec *client.Record) error {
	if outputFormat == "json" {
		return printJSON(rec)
	}
	printRecord(rec)
	return nil
}

func printRecord(rec *client.Record) {
	lines := []string{
		fmt.Sprintf("Height:   %d", rec.Height),
		fmt.Sprintf("Hash:     %s", rec.Hash),
		fmt.Sprintf("Previous: %s", rec.PreviousHash),
		fmt.Sprintf("Time:     %s", time.Unix(rec.Time, 0).Local().Format(time.RFC3339)),
	}
	switch {
	case rec.Payload == nil:
		lines = append(lines, "Payload:  undecodable ("+rec.DecodeError+")")
	case rec.Payload.Genesis:
		lines = append(lines, "Payload:  genesis")
	default:
		lines = append(lines,
			"Owner:    "+rec.Payload.Owner,
			"Star:     "+string(rec.Payload.Star),
		)
	}
	pterm.DefaultBox.WithTitle("Record").Println(strings.Join(lines, "\n"))
}

var starsCmd = &cobra.Command{
	Use:   "stars [identity]",
	Short: "List stars owned by an identity (defaults to the configured key's address)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := identityArg(args)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		stars, err := c.StarsByIdentity(context.Background(), identity)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(stars)
		}
		if len(stars) == 0 {
			pterm.Info.Printfln("No stars owned by %s", identity)
			return nil
		}
		data := pterm.TableData{{"#", "STAR"}}
		for i, s := range stars {
			data = append(data, []string{strconv.Itoa(i + 1), string(s.Star)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var heightCmd = &cobra.Command{
	Use:   "height",
	Short: "Print the current chain height and tip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		info, err := c.Chain(context.Background())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(info)
		}
		fmt.Printf("%d %s\n", info.Height, info.Tip)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask the server to validate the whole chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.Verify(context.Background())
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(res)
		}
		if res.Valid {
			pterm.Success.Println("Chain is valid")
			return nil
		}
		for _, e := range res.Errors {
			pterm.Error.Println(e)
		}
		return fmt.Errorf("chain has %d invalid records", len(res.Errors))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the starctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("starctl %s\n", version)
	},
}

func identityArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	key, err := client.LoadKey(keyFile)
	if err != nil {
		return "", fmt.Errorf("no identity given and %w", err)
	}
	return key.Address(), nil
}
