package escrow

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	ledgererrors "creatorpay/core/errors"
)

// MaxContentIDLength bounds the caller supplied content reference.
const MaxContentIDLength = 256

// EscrowStatus is the one-way lifecycle of a deposit.
type EscrowStatus uint8

const (
	EscrowFunded EscrowStatus = iota
	EscrowReleased
)

// Valid reports whether the status value is within the supported range.
func (s EscrowStatus) Valid() bool {
	return s == EscrowFunded || s == EscrowReleased
}

func (s EscrowStatus) String() string {
	switch s {
	case EscrowFunded:
		return "funded"
	case EscrowReleased:
		return "released"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Escrow is a gross deposit held against a piece of content until the payer
// or the Owner releases it to the creator.
type Escrow struct {
	ID         [32]byte     `json:"id"`
	Payer      [20]byte     `json:"payer"`
	Creator    [20]byte     `json:"creator"`
	Amount     *big.Int     `json:"amount"`
	ContentID  string       `json:"contentId"`
	CreatedAt  int64        `json:"createdAt"`
	Status     EscrowStatus `json:"status"`
	ReleasedAt int64        `json:"releasedAt,omitempty"`
	ReleasedBy [20]byte     `json:"releasedBy"`
	FeeBps     uint32       `json:"feeBps,omitempty"`
}

// Released reports whether the deposit has been paid out.
func (e *Escrow) Released() bool {
	return e != nil && e.Status == EscrowReleased
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// NormalizeContentID trims the reference and enforces the length bound.
func NormalizeContentID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", ledgererrors.ErrInvalidContentID
	}
	if len(trimmed) > MaxContentIDLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ledgererrors.ErrInvalidContentID, MaxContentIDLength)
	}
	return trimmed, nil
}

// DeriveID hashes the deposit tuple with the ledger sequence number.
func DeriveID(payer, creator [20]byte, contentID string, createdAt int64, sequence uint64) [32]byte {
	buf := make([]byte, 0, 20+20+len(contentID)+16)
	buf = append(buf, payer[:]...)
	buf = append(buf, creator[:]...)
	buf = append(buf, contentID...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt))
	buf = binary.BigEndian.AppendUint64(buf, sequence)
	return ethcrypto.Keccak256Hash(buf)
}
