package fees

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	ledgererrors "creatorpay/core/errors"
)

const (
	// BasisPoints is the denominator for all fee rates.
	BasisPoints = 10_000
	// MaxPlatformFeeBps caps the platform cut at 10%.
	MaxPlatformFeeBps uint32 = 1_000
	// DefaultPlatformFeeBps is applied when no rate is configured.
	DefaultPlatformFeeBps uint32 = 250
)

var bpsDenominator = big.NewInt(BasisPoints)

// Split divides a gross amount into the platform cut and the creator cut. The
// platform cut is floor(amount*bps/10000); any remainder from the division
// stays with the creator so the two parts always sum to amount.
func Split(amount *big.Int, feeBps uint32) (platformCut, creatorCut *big.Int) {
	gross := big.NewInt(0)
	if amount != nil && amount.Sign() > 0 {
		gross = new(big.Int).Set(amount)
	}
	if feeBps == 0 || gross.Sign() == 0 {
		return big.NewInt(0), gross
	}
	platformCut = new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(feeBps)))
	platformCut.Quo(platformCut, bpsDenominator)
	if platformCut.Cmp(gross) > 0 {
		platformCut.Set(gross)
	}
	creatorCut = new(big.Int).Sub(gross, platformCut)
	return platformCut, creatorCut
}

// ValidateRate rejects fee rates above MaxPlatformFeeBps.
func ValidateRate(bps uint32) error {
	if bps > MaxPlatformFeeBps {
		return fmt.Errorf("%w: %d bps exceeds ceiling of %d", ledgererrors.ErrInvalidFeeRate, bps, MaxPlatformFeeBps)
	}
	return nil
}

// ValidateAmount requires a strictly positive amount that fits the 256-bit
// token unit.
func ValidateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ledgererrors.ErrInvalidAmount
	}
	if _, overflow := uint256.FromBig(amount); overflow {
		return fmt.Errorf("%w: exceeds 256 bits", ledgererrors.ErrInvalidAmount)
	}
	return nil
}
