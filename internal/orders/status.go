package orders

import (
	"errors"
	"fmt"
)

// ErrInvalidStatus wraps every unknown order or payment status.
var ErrInvalidStatus = errors.New("invalid status")

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every order status in display order.
var Statuses = []Status{
	StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled,
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var PaymentStatuses = []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (p PaymentStatus) Valid() bool {
	for _, v := range PaymentStatuses {
		if p == v {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	if st := Status(s); st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("%w: order status %q", ErrInvalidStatus, s)
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	if ps := PaymentStatus(s); ps.Valid() {
		return ps, nil
	}
	return "", fmt.Errorf("%w: payment status %q", ErrInvalidStatus, s)
}

// validNext is the forward-only fulfilment graph. The admin console is
// permissive by default and only consults it when strict transitions are on.
var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusConfirmed: true, StatusProcessing: true, StatusCancelled: true},
	StatusConfirmed:  {StatusProcessing: true, StatusShipped: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return from == to || validNext[from][to]
}
