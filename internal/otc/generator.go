// Package otc generates one-time codes.
package otc

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// CodeLength is the fixed number of digits in a generated code.
	CodeLength = 6

	codeMin  = 100000
	codeSpan = 900000
)

// GenerateCode returns a six-digit numeric code drawn uniformly from
// [100000, 999999] using the platform CSPRNG. The output carries no
// sequential or time-derived structure.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("failed to read random source: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
