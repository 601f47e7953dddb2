package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/chainsafe/swap-coordinator/pkg/api"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

func newQuoteCommand(opts *options) *cobra.Command {
	var network string
	cmd := &cobra.Command{
		Use:   "quote <amount> <from> to <to>",
		Short: "Price a swap without starting it",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseSwapArgs(args)
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}

			var q *api.QuoteResponse
			err = opts.withSpinner(cmd.ErrOrStderr(), "Fetching quote...", func() error {
				q, err = c.Quote(cmd.Context(), api.QuoteRequest{
					From: parsed.From, To: parsed.To, Amount: parsed.Amount, Network: network,
				})
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, q)
			}
			printHeader(out, "QUOTE")
			printField(out, "Pair", fmt.Sprintf("%s -> %s", q.From, q.To))
			printField(out, "Network", q.Network)
			printField(out, "From amount", q.FromAmount)
			printField(out, "To amount", color.GreenString(q.ToAmount))
			printField(out, "Chains", fmt.Sprintf("%d -> %d", q.FromChainID, q.ToChainID))
			printField(out, "Tool", q.Tool)
			if q.ApprovalAddress != "" {
				printField(out, "Approval", q.ApprovalAddress)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&network, "network", "n", "mainnet", "Network (mainnet or testnet)")
	return cmd
}

func newSwapCommand(opts *options) *cobra.Command {
	var (
		network string
		fee     string
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "swap <amount> <from> to <to>",
		Short: "Start a swap",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseSwapArgs(args)
			if err != nil {
				return err
			}
			feeAmount, err := decimal.NewFromString(fee)
			if err != nil {
				return fmt.Errorf("invalid fee %q: %w", fee, err)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}

			var rec *api.SwapResponse
			err = opts.withSpinner(cmd.ErrOrStderr(), "Submitting swap...", func() error {
				rec, err = c.CreateSwap(cmd.Context(), api.SwapRequest{
					QuoteRequest: api.QuoteRequest{From: parsed.From, To: parsed.To, Amount: parsed.Amount, Network: network},
					Fee:          feeAmount,
				})
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, rec)
			}
			printSwap(out, rec)
			if watch {
				return watchStatus(cmd.Context(), out, opts, rec.ID, 5*time.Second)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&network, "network", "n", "mainnet", "Network (mainnet or testnet)")
	cmd.Flags().StringVar(&fee, "fee", "0", "Service fee recorded with the swap")
	cmd.Flags().BoolVar(&watch, "watch", false, "Follow the swap until it is final")
	return cmd
}

func newListCommand(opts *options) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List swaps of the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			recs, err := c.ListSwaps(cmd.Context(), swap.Status(strings.ToUpper(status)), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No swaps")
				return nil
			}
			for _, rec := range recs {
				fmt.Fprintf(out, "%s  %-8s %-8s %s  %s\n",
					rec.ID, rec.From, rec.To, coloredStatus(rec.Status), rec.CreatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list swaps in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of swaps")
	return cmd
}

func newStatusCommand(opts *options) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status <swap-id>",
		Short: "Show the progress of a swap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if watch {
				return watchStatus(cmd.Context(), out, opts, args[0], interval)
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.SwapStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(out, st)
			}
			printStatus(out, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until the swap is final")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Polling interval when watching")
	return cmd
}

func newAbortCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <swap-id>",
		Short: "Stop the coordinator from driving a swap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.AbortSwap(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, res)
			}
			if res.Aborted {
				fmt.Fprintf(out, "Stopped driving %s\n", res.ID)
			} else {
				fmt.Fprintf(out, "%s was not being driven\n", res.ID)
			}
			return nil
		},
	}
}

func newStatusesCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "List swap lifecycle statuses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			list, err := c.Statuses(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return printJSON(out, list)
			}
			for _, s := range list {
				fmt.Fprintf(out, "%d  %-34s %-10s %s\n", s.Step, coloredStatus(s.Status), s.FilterStatus, s.Label)
			}
			return nil
		},
	}
}

func watchStatus(ctx context.Context, out io.Writer, opts *options, id string, interval time.Duration) error {
	c, err := opts.client()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nWatching %s every %s. Press Ctrl+C to stop.\n", color.CyanString(id), interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last swap.Status
	for {
		st, err := c.SwapStatus(ctx, id)
		if err != nil {
			color.New(color.FgRed).Fprintf(out, "Error: %v\n", err)
		} else if st.Status != last {
			last = st.Status
			if opts.jsonOutput {
				if err := printJSON(out, st); err != nil {
					return err
				}
			} else {
				printStatus(out, st)
			}
			if st.Terminal {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printSwap(w io.Writer, rec *api.SwapResponse) {
	printHeader(w, "SWAP")
	printField(w, "ID", color.CyanString(rec.ID))
	printField(w, "Pair", fmt.Sprintf("%s -> %s", rec.From, rec.To))
	printField(w, "Status", coloredStatus(rec.Status))
	printField(w, "From amount", rec.FromAmount)
	printField(w, "To amount", rec.ToAmount)
	if rec.ApproveTxHash != "" {
		printField(w, "Approval tx", color.HiBlackString(rec.ApproveTxHash))
	}
	if rec.SwapTxHash != "" {
		printField(w, "Swap tx", color.HiBlackString(rec.SwapTxHash))
	}
	if rec.LastError != "" {
		printField(w, "Last error", color.RedString(rec.LastError))
	}
}

func printStatus(w io.Writer, st *api.SwapStatusResponse) {
	printHeader(w, fmt.Sprintf("STEP %d/%d  %s", st.Step, st.TotalSteps, st.Label))
	printField(w, "Status", coloredStatus(st.Status))
	printField(w, "Message", st.Message)
	printField(w, "Progress", progressBar(st.Step, st.TotalSteps))
}

func progressBar(step, total int) string {
	if total <= 0 {
		return ""
	}
	if step > total {
		step = total
	}
	return "[" + strings.Repeat("#", step) + strings.Repeat(".", total-step) + "]"
}

func coloredStatus(s swap.Status) string {
	switch s {
	case swap.StatusSuccess:
		return color.GreenString(string(s))
	case swap.StatusFailed:
		return color.RedString(string(s))
	case swap.StatusAwaitingApprovalConfirmation, swap.StatusApprovalConfirmed, swap.StatusAwaitingSettlementConfirmation:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
