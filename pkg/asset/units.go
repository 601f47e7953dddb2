package asset

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a display-unit amount into integer base units.
// Fractions of a base unit are truncated.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts integer base units into a display-unit amount.
func FromBaseUnits(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// FormatAddress normalises an address according to chain's rules.
// EVM addresses are returned in checksummed form.
func FormatAddress(chain Chain, address string) (string, error) {
	if chain == ChainBitcoin {
		return strings.TrimSpace(address), nil
	}
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", &InvalidAddressError{Chain: chain, Address: address}
	}
	return common.HexToAddress(address).Hex(), nil
}

// InvalidAddressError is returned by FormatAddress for malformed addresses.
type InvalidAddressError struct {
	Chain   Chain
	Address string
}

func (e *InvalidAddressError) Error() string {
	return "invalid " + string(e.Chain) + " address: " + e.Address
}
