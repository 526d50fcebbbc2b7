package state

import (
	"fmt"
	"math"
	"math/big"
)

var (
	feeRateKey        = []byte("ledger/fee-rate")
	sequenceKey       = []byte("ledger/sequence")
	creatorTotalKey   = []byte("ledger/creator-total")
	platformFeesKey   = []byte("ledger/platform-fees")
	escrowHoldingsKey = []byte("ledger/escrow-holdings")
	custodyKey        = []byte("ledger/custody")
	tokenSymbolKey    = []byte("ledger/token-symbol")
)

func roleKey(role string) []byte { return prefixedKey("ledger/role/", []byte(role)) }

func pausedKey(module string) []byte { return prefixedKey("ledger/paused/", []byte(module)) }

// RoleHolder returns the single identity holding role.
func (m *Manager) RoleHolder(role string) ([20]byte, bool, error) {
	var holder [20]byte
	var raw []byte
	ok, err := m.KVGet(roleKey(role), &raw)
	if err != nil || !ok {
		return holder, false, err
	}
	if len(raw) != len(holder) {
		return holder, false, fmt.Errorf("state: malformed %s role record", role)
	}
	copy(holder[:], raw)
	return holder, true, nil
}

// SetRoleHolder replaces the identity holding role.
func (m *Manager) SetRoleHolder(role string, addr [20]byte) error {
	if role == "" {
		return fmt.Errorf("role must not be empty")
	}
	return m.KVPut(roleKey(role), addr[:])
}

// PlatformFeeRate returns the fee rate in basis points.
func (m *Manager) PlatformFeeRate() (uint32, error) {
	var stored uint64
	if _, err := m.KVGet(feeRateKey, &stored); err != nil {
		return 0, err
	}
	if stored > math.MaxUint32 {
		return 0, fmt.Errorf("state: fee rate overflow: %d", stored)
	}
	return uint32(stored), nil
}

func (m *Manager) SetPlatformFeeRate(bps uint32) error {
	return m.KVPut(feeRateKey, uint64(bps))
}

// IsPaused reports whether module has been stopped. Read failures report
// paused so a corrupt flag fails closed.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	if _, err := m.KVGet(pausedKey(module), &paused); err != nil {
		return true
	}
	return paused
}

func (m *Manager) SetPaused(module string, paused bool) error {
	return m.KVPut(pausedKey(module), paused)
}

// NextSequence returns the next ledger-wide sequence number and persists the
// increment.
func (m *Manager) NextSequence() (uint64, error) {
	var current uint64
	if _, err := m.KVGet(sequenceKey, &current); err != nil {
		return 0, err
	}
	if current == math.MaxUint64 {
		return 0, fmt.Errorf("state: sequence exhausted")
	}
	next := current + 1
	if err := m.KVPut(sequenceKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *Manager) CreatorTotal() (*big.Int, error) { return m.loadBigInt(creatorTotalKey) }

func (m *Manager) SetCreatorTotal(amount *big.Int) error {
	return m.writeBigInt(creatorTotalKey, amount)
}

func (m *Manager) PlatformFees() (*big.Int, error) { return m.loadBigInt(platformFeesKey) }

func (m *Manager) SetPlatformFees(amount *big.Int) error {
	return m.writeBigInt(platformFeesKey, amount)
}

func (m *Manager) EscrowHoldings() (*big.Int, error) { return m.loadBigInt(escrowHoldingsKey) }

func (m *Manager) SetEscrowHoldings(amount *big.Int) error {
	return m.writeBigInt(escrowHoldingsKey, amount)
}

// Custody returns the account the ledger holds funds in and the settlement
// token symbol, as recorded at genesis.
func (m *Manager) Custody() ([20]byte, string, bool, error) {
	var addr [20]byte
	var raw []byte
	ok, err := m.KVGet(custodyKey, &raw)
	if err != nil || !ok {
		return addr, "", false, err
	}
	if len(raw) != len(addr) {
		return addr, "", false, fmt.Errorf("state: malformed custody record")
	}
	copy(addr[:], raw)
	var symbol string
	if _, err := m.KVGet(tokenSymbolKey, &symbol); err != nil {
		return addr, "", false, err
	}
	return addr, symbol, true, nil
}

func (m *Manager) SetCustody(addr [20]byte, symbol string) error {
	if err := m.KVPut(custodyKey, addr[:]); err != nil {
		return err
	}
	return m.KVPut(tokenSymbolKey, normalizeSymbol(symbol))
}
