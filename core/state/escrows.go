package state

import (
	"fmt"
	"math/big"

	"creatorpay/native/escrow"
)

func escrowKey(id [32]byte) []byte { return prefixedKey("escrow/record/", id[:]) }

func escrowsByPayerKey(addr [20]byte) []byte { return prefixedKey("escrow/by-payer/", addr[:]) }

func escrowsByCreatorKey(addr [20]byte) []byte {
	return prefixedKey("escrow/by-creator/", addr[:])
}

type storedEscrow struct {
	ID         [32]byte
	Payer      [20]byte
	Creator    [20]byte
	Amount     *big.Int
	ContentID  string
	CreatedAt  uint64
	Status     uint8
	ReleasedAt uint64
	ReleasedBy [20]byte
	FeeBps     uint32
}

func (m *Manager) EscrowPut(esc *escrow.Escrow) error {
	if esc == nil {
		return fmt.Errorf("escrow: nil value")
	}
	if !esc.Status.Valid() {
		return fmt.Errorf("escrow: invalid status %s", esc.Status)
	}
	key := escrowKey(esc.ID)
	exists, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	record := &storedEscrow{
		ID:         esc.ID,
		Payer:      esc.Payer,
		Creator:    esc.Creator,
		Amount:     nonNil(esc.Amount),
		ContentID:  esc.ContentID,
		CreatedAt:  fromUnix(esc.CreatedAt),
		Status:     uint8(esc.Status),
		ReleasedAt: fromUnix(esc.ReleasedAt),
		ReleasedBy: esc.ReleasedBy,
		FeeBps:     esc.FeeBps,
	}
	if err := m.KVPut(key, record); err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := m.KVAppend(escrowsByPayerKey(esc.Payer), esc.ID[:]); err != nil {
		return err
	}
	return m.KVAppend(escrowsByCreatorKey(esc.Creator), esc.ID[:])
}

func (m *Manager) EscrowGet(id [32]byte) (*escrow.Escrow, bool, error) {
	stored := new(storedEscrow)
	ok, err := m.KVGet(escrowKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	status := escrow.EscrowStatus(stored.Status)
	if !status.Valid() {
		return nil, false, fmt.Errorf("escrow %x: invalid stored status %d", id, stored.Status)
	}
	return &escrow.Escrow{
		ID:         stored.ID,
		Payer:      stored.Payer,
		Creator:    stored.Creator,
		Amount:     nonNil(stored.Amount),
		ContentID:  stored.ContentID,
		CreatedAt:  toUnix(stored.CreatedAt),
		Status:     status,
		ReleasedAt: toUnix(stored.ReleasedAt),
		ReleasedBy: stored.ReleasedBy,
		FeeBps:     stored.FeeBps,
	}, true, nil
}

func (m *Manager) EscrowsByPayer(addr [20]byte) ([][32]byte, error) {
	return m.loadIDList(escrowsByPayerKey(addr))
}

func (m *Manager) EscrowsByCreator(addr [20]byte) ([][32]byte, error) {
	return m.loadIDList(escrowsByCreatorKey(addr))
}
