package crypto

import (
	"fmt"
	"strings"
)

// ParseLedgerAddress decodes a bech32 identity and insists on the ledger
// prefix. The zero address is accepted here; callers that forbid it check
// separately.
func ParseLedgerAddress(value string) ([20]byte, error) {
	var raw [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return raw, fmt.Errorf("address must not be empty")
	}
	addr, err := DecodeAddress(trimmed)
	if err != nil {
		return raw, err
	}
	if addr.Prefix() != LedgerPrefix {
		return raw, fmt.Errorf("address %s: unexpected prefix %q", trimmed, addr.Prefix())
	}
	return addr.Raw(), nil
}

// FormatAddress renders a raw identity with the ledger prefix.
func FormatAddress(raw [20]byte) string {
	return FromRaw(raw).String()
}
