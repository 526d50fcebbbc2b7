package subscription

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// MinInterval is the shortest billing period accepted, one day in seconds.
const MinInterval uint64 = 86_400

// MaxInterval bounds the billing period so NextDue stays far from int64
// overflow. It is roughly 34,800 years.
const MaxInterval uint64 = 1 << 40

// Subscription is a recurring payment agreement between a subscriber and a
// creator. Records are never deleted; cancellation only clears Active.
type Subscription struct {
	ID           [32]byte `json:"id"`
	Subscriber   [20]byte `json:"subscriber"`
	Creator      [20]byte `json:"creator"`
	Amount       *big.Int `json:"amount"`
	Interval     uint64   `json:"interval"`
	NextDue      int64    `json:"nextDue"`
	Active       bool     `json:"active"`
	TotalPaid    *big.Int `json:"totalPaid"`
	PaymentCount uint64   `json:"paymentCount"`
	CreatedAt    int64    `json:"createdAt"`
	CancelledAt  int64    `json:"cancelledAt,omitempty"`
}

// Clone returns a deep copy of the subscription.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Amount = cloneBigInt(s.Amount)
	clone.TotalPaid = cloneBigInt(s.TotalPaid)
	return &clone
}

// DueAt reports whether a charge may be taken at now.
func (s *Subscription) DueAt(now int64) bool {
	return s != nil && s.Active && now >= s.NextDue
}

// TipReceipt summarises a settled tip.
type TipReceipt struct {
	User        [20]byte
	Creator     [20]byte
	Amount      *big.Int
	PlatformCut *big.Int
	CreatorCut  *big.Int
	ContentID   string
	SentAt      int64
}

// DeriveID hashes the creation tuple together with the ledger sequence number
// so identical requests in the same second still get distinct identifiers.
func DeriveID(subscriber, creator [20]byte, createdAt int64, amount *big.Int, sequence uint64) [32]byte {
	buf := make([]byte, 0, 20+20+8+32+8)
	buf = append(buf, subscriber[:]...)
	buf = append(buf, creator[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt))
	buf = append(buf, math.U256Bytes(cloneBigInt(amount))...)
	buf = binary.BigEndian.AppendUint64(buf, sequence)
	return ethcrypto.Keccak256Hash(buf)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
