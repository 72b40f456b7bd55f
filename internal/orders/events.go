package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderUpdated = "OrderUpdated"
	EventOrderDeleted = "OrderDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the Event* constants
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "ordersapi"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // the order id
	Payload       json.RawMessage `json:"payload"`
}

// LifecyclePayload is the payload of every order lifecycle event. Status
// fields are empty for OrderDeleted.
type LifecyclePayload struct {
	OrderID       string          `json:"order_id"`
	Status        Status          `json:"status,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status,omitempty"`
	Total         decimal.Decimal `json:"total"`
}

func PayloadFor(o Order) LifecyclePayload {
	return LifecyclePayload{OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus, Total: o.Total}
}

// NewEnvelope wraps the lifecycle payload of o in a fresh v1 envelope.
func NewEnvelope(eventType, producer, traceID string, o Order) (Envelope, error) {
	payload, err := json.Marshal(PayloadFor(o))
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: o.ID,
		Payload:       payload,
	}, nil
}
