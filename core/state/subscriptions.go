package state

import (
	"fmt"
	"math/big"

	"creatorpay/native/subscription"
)

var subscriptionIndexKey = []byte("subscription/index/all")

func subscriptionKey(id [32]byte) []byte {
	return prefixedKey("subscription/record/", id[:])
}

func subscriptionsBySubscriberKey(addr [20]byte) []byte {
	return prefixedKey("subscription/by-subscriber/", addr[:])
}

func subscriptionsByCreatorKey(addr [20]byte) []byte {
	return prefixedKey("subscription/by-creator/", addr[:])
}

type storedSubscription struct {
	ID           [32]byte
	Subscriber   [20]byte
	Creator      [20]byte
	Amount       *big.Int
	Interval     uint64
	NextDue      uint64
	Active       bool
	TotalPaid    *big.Int
	PaymentCount uint64
	CreatedAt    uint64
	CancelledAt  uint64
}

func newStoredSubscription(sub *subscription.Subscription) *storedSubscription {
	return &storedSubscription{
		ID:           sub.ID,
		Subscriber:   sub.Subscriber,
		Creator:      sub.Creator,
		Amount:       nonNil(sub.Amount),
		Interval:     sub.Interval,
		NextDue:      fromUnix(sub.NextDue),
		Active:       sub.Active,
		TotalPaid:    nonNil(sub.TotalPaid),
		PaymentCount: sub.PaymentCount,
		CreatedAt:    fromUnix(sub.CreatedAt),
		CancelledAt:  fromUnix(sub.CancelledAt),
	}
}

func (s *storedSubscription) toSubscription() *subscription.Subscription {
	return &subscription.Subscription{
		ID:           s.ID,
		Subscriber:   s.Subscriber,
		Creator:      s.Creator,
		Amount:       nonNil(s.Amount),
		Interval:     s.Interval,
		NextDue:      toUnix(s.NextDue),
		Active:       s.Active,
		TotalPaid:    nonNil(s.TotalPaid),
		PaymentCount: s.PaymentCount,
		CreatedAt:    toUnix(s.CreatedAt),
		CancelledAt:  toUnix(s.CancelledAt),
	}
}

// SubscriptionPut stores the record and, on first insert, adds it to the
// global, subscriber and creator indexes.
func (m *Manager) SubscriptionPut(sub *subscription.Subscription) error {
	if sub == nil {
		return fmt.Errorf("subscription: nil value")
	}
	key := subscriptionKey(sub.ID)
	exists, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	if err := m.KVPut(key, newStoredSubscription(sub)); err != nil {
		return err
	}
	if exists {
		return nil
	}
	for _, index := range [][]byte{
		subscriptionIndexKey,
		subscriptionsBySubscriberKey(sub.Subscriber),
		subscriptionsByCreatorKey(sub.Creator),
	} {
		if err := m.KVAppend(index, sub.ID[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) SubscriptionGet(id [32]byte) (*subscription.Subscription, bool, error) {
	stored := new(storedSubscription)
	ok, err := m.KVGet(subscriptionKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toSubscription(), true, nil
}

// SubscriptionIDs lists every subscription in creation order.
func (m *Manager) SubscriptionIDs() ([][32]byte, error) {
	return m.loadIDList(subscriptionIndexKey)
}

func (m *Manager) SubscriptionsBySubscriber(addr [20]byte) ([][32]byte, error) {
	return m.loadIDList(subscriptionsBySubscriberKey(addr))
}

func (m *Manager) SubscriptionsByCreator(addr [20]byte) ([][32]byte, error) {
	return m.loadIDList(subscriptionsByCreatorKey(addr))
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
