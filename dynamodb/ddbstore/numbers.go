package ddbstore

import (
	"fmt"
	"math/big"
	"strings"
)

// DynamoDB numbers are decimals with up to 38 significant digits, so they are
// handled as exact rationals rather than float64.

func parseNumber(s string) (*big.Rat, error) {
	n, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a number", errValidation, s)
	}
	return n, nil
}

// formatNumber renders n in canonical form: no exponent, no trailing zeros.
func formatNumber(n *big.Rat) string {
	if n.IsInt() {
		return n.Num().String()
	}
	s := n.FloatString(38)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func addNumbers(a, b string, negate bool) (string, error) {
	x, err := parseNumber(a)
	if err != nil {
		return "", err
	}
	y, err := parseNumber(b)
	if err != nil {
		return "", err
	}
	if negate {
		y.Neg(y)
	}
	return formatNumber(new(big.Rat).Add(x, y)), nil
}

func compareNumbers(a, b string) (int, error) {
	x, err := parseNumber(a)
	if err != nil {
		return 0, err
	}
	y, err := parseNumber(b)
	if err != nil {
		return 0, err
	}
	return x.Cmp(y), nil
}
