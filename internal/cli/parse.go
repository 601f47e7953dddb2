package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var swapPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s+([A-Z0-9]+)\s+TO\s+([A-Z0-9]+)$`)

// swapArgs is a parsed "<amount> <from> to <to>" phrase.
type swapArgs struct {
	Amount decimal.Decimal
	From   string
	To     string
}

// parseSwapArgs parses phrases like "1.5 ETH to PUSDC". A leading "swap" is ignored.
func parseSwapArgs(args []string) (swapArgs, error) {
	phrase := strings.ToUpper(strings.Join(strings.Fields(strings.Join(args, " ")), " "))
	phrase = strings.TrimPrefix(phrase, "SWAP ")

	m := swapPattern.FindStringSubmatch(phrase)
	if m == nil {
		return swapArgs{}, fmt.Errorf("expected '<amount> <asset> to <asset>' (e.g. '1.5 ETH to PUSDC'), got %q", strings.Join(args, " "))
	}
	amount, err := decimal.NewFromString(m[1])
	if err != nil {
		return swapArgs{}, fmt.Errorf("invalid amount %q: %w", m[1], err)
	}
	if !amount.IsPositive() {
		return swapArgs{}, fmt.Errorf("amount must be positive")
	}
	if m[2] == m[3] {
		return swapArgs{}, fmt.Errorf("source and destination asset are both %s", m[2])
	}
	return swapArgs{Amount: amount, From: m[2], To: m[3]}, nil
}
