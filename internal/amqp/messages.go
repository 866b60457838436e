package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	ResourceTransactions   = "transactions"
	ResourceCategories     = "categories"
	ResourcePaymentMethods = "payment_methods"

	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// ChangeMessage announces a successful ledger write. It carries no row data;
// consumers re-read what they need. Year is the calendar year of the
// affected transaction, zero for other resources. PreviousYear is set when
// an update moved a transaction to another year.
type ChangeMessage struct {
	Resource     string    `json:"resource"`
	Action       string    `json:"action"`
	ID           int64     `json:"id"`
	Year         int       `json:"year,omitempty"`
	PreviousYear int       `json:"previous_year,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewChangeMessage(resource, action string, id int64, year int) *ChangeMessage {
	return &ChangeMessage{
		Resource:  resource,
		Action:    action,
		ID:        id,
		Year:      year,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and sanity-checks a message body.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Resource {
	case ResourceTransactions, ResourceCategories, ResourcePaymentMethods:
	default:
		return nil, fmt.Errorf("unknown resource %q", msg.Resource)
	}
	return &msg, nil
}

// RoutingKey is the queue binding key for messages about resource.
func (m *ChangeMessage) RoutingKey() string {
	return m.Resource
}
