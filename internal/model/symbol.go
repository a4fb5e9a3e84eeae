package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSymbol is returned when an instrument symbol does not follow
// the BASE-QUOTE convention.
var ErrInvalidSymbol = errors.New("model: invalid instrument symbol")

// ParseSymbol splits an instrument symbol of the form "BTC-USD" into its
// base and quote assets. Both parts must be non-empty and uppercase.
func ParseSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(symbol, "-")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q (want BASE-QUOTE)", ErrInvalidSymbol, symbol)
	}
	base, quote = parts[0], parts[1]
	if base == "" || quote == "" {
		return "", "", fmt.Errorf("%w: %q (empty asset)", ErrInvalidSymbol, symbol)
	}
	if base != strings.ToUpper(base) || quote != strings.ToUpper(quote) {
		return "", "", fmt.Errorf("%w: %q (assets must be uppercase)", ErrInvalidSymbol, symbol)
	}
	return base, quote, nil
}
