// Package cli implements the swapctl command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chainsafe/swap-coordinator/pkg/client"
	"github.com/chainsafe/swap-coordinator/pkg/config"
)

type options struct {
	configPath string
	baseURL    string
	walletID   string
	jsonOutput bool
}

// NewRootCommand builds the swapctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "swapctl",
		Short: "Command line client for the swap coordinator",
		Long: `swapctl quotes, starts and follows cross-chain swaps through a swap
coordinator.

Examples:
  swapctl quote 10 PUSDC to ETH
  swapctl swap 0.5 ETH to PUSDC --network testnet
  swapctl status <swap-id> --watch
  swapctl list --status SUCCESS`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("SWAPCTL_CONFIG"), "Path to client configuration file")
	root.PersistentFlags().StringVar(&opts.baseURL, "url", "", "Coordinator base URL (overrides config)")
	root.PersistentFlags().StringVarP(&opts.walletID, "wallet", "w", os.Getenv("SWAPCTL_WALLET"), "Wallet id sent when no token is configured")
	root.PersistentFlags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output in JSON format")

	root.AddCommand(
		newQuoteCommand(opts),
		newSwapCommand(opts),
		newListCommand(opts),
		newStatusCommand(opts),
		newAbortCommand(opts),
		newStatusesCommand(opts),
	)
	return root
}

func (o *options) client() (*client.Client, error) {
	cfg, err := config.LoadClient(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	if o.walletID != "" {
		cfg.WalletID = o.walletID
	}
	if token := os.Getenv("SWAPCTL_TOKEN"); token != "" {
		cfg.Token = token
	}
	return client.New(cfg), nil
}

// withSpinner runs fn behind a spinner unless output is JSON.
func (o *options) withSpinner(w io.Writer, suffix string, fn func() error) error {
	if o.jsonOutput {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	defer s.Stop()
	return fn()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printField(w io.Writer, name, value string) {
	fmt.Fprintf(w, "  %-16s %s\n", name+":", value)
}

func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, color.New(color.Bold).Sprint(title))
}
