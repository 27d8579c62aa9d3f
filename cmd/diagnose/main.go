// Command diagnose replays the unsubscribe flow step by step against a live
// Mautic instance to locate where a DNC add goes wrong.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignite/mautic-dnc-proxy/internal/config"
	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var (
	configPath string
	baseURL    string
	username   string
	password   string
	reason     int
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "diagnose <email>",
	Short: "Replay the unsubscribe flow against Mautic",
	Long: `diagnose runs each step of the unsubscribe flow against the live Mautic API
and prints what happened:

  1  Connectivity     reachability and credentials
  2  Contact search   exact-email filter query
  3  Exact match      case-insensitive match among candidates
  4  Pre-DNC state    doNotContact before the add
  5  DNC add          add, inspecting the body for errors
  6  Post-DNC verify  doNotContact after the add
  7  Idempotency      repeat the add and compare

Credentials resolve: flag > environment (.env is loaded) > config file.
The DNC add is real: the address ends up unsubscribed.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config/config.yaml", "config file")
	rootCmd.Flags().StringVar(&baseURL, "base-url", "", "Mautic base URL (default: MAUTIC_BASE_URL)")
	rootCmd.Flags().StringVar(&username, "username", "", "Mautic API username (default: MAUTIC_USERNAME)")
	rootCmd.Flags().StringVar(&password, "password", "", "Mautic API password (default: MAUTIC_PASSWORD)")
	rootCmd.Flags().IntVar(&reason, "reason", 1, "DNC reason code sent with the add")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "per-request timeout")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return &exitError{code: 1, msg: fmt.Sprintf("load config: %v", err)}
	}
	mc := cfg.Mautic
	if baseURL != "" {
		mc.BaseURL = baseURL
	}
	if username != "" {
		mc.Username = username
	}
	if password != "" {
		mc.Password = password
	}
	mc.TimeoutSeconds = int(timeout / time.Second)
	mc.ProbeTimeoutSeconds = mc.TimeoutSeconds

	email := strings.ToLower(strings.TrimSpace(args[0]))
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s\n  Mautic DNC diagnostic\n%s\n", rule, rule)
	fmt.Fprintf(out, "  Email:    %s\n", email)
	fmt.Fprintf(out, "  Base URL: %s\n", mc.BaseURL)
	fmt.Fprintf(out, "  Username: %s\n", setOrNot(mc.Username, mc.Username))
	fmt.Fprintf(out, "  Password: %s\n\n", setOrNot(mc.Password, "[SET]"))

	if mc.Username == "" || mc.Password == "" {
		return &exitError{code: 1, msg: "Mautic credentials not set; use --username/--password or env vars"}
	}

	d := NewDiagnoser(mautic.NewClient(mc), email, reason, out)
	results := d.Run(cmd.Context())
	PrintSummary(out, results)

	if AnyFailed(results) {
		return &exitError{code: 2, msg: "one or more steps failed"}
	}
	return nil
}

func setOrNot(v, shown string) string {
	if v == "" {
		return "[NOT SET]"
	}
	return shown
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}
