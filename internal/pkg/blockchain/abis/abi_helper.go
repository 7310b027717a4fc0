// Package abis holds the minimal contract ABIs read by the reconciler.
package abis

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseABI parses a JSON ABI fragment.
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &parsed, nil
}

// RequireMethods returns an error naming the first method missing from a.
func RequireMethods(a *abi.ABI, names ...string) error {
	for _, name := range names {
		if _, ok := a.Methods[name]; !ok {
			return fmt.Errorf("ABI has no method %q", name)
		}
	}
	return nil
}
