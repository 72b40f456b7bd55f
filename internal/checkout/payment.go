package checkout

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

var ErrUnknownPaymentMethod = errors.New("unknown payment method")

type PaymentMethod string

const (
	PayOnDelivery PaymentMethod = "cod"
	BankTransfer  PaymentMethod = "bank_transfer"
	Card          PaymentMethod = "card"
	EWallet       PaymentMethod = "e_wallet"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PayOnDelivery, BankTransfer, Card, EWallet:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPaymentMethod, s)
}

// PaymentStatus is the status a new order starts with: prepaid methods have
// already settled by the time the order is created.
func (m PaymentMethod) PaymentStatus() orders.PaymentStatus {
	if m == PayOnDelivery {
		return orders.PaymentPending
	}
	return orders.PaymentPaid
}
