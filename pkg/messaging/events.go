package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Expiry events
	EventExpiryCritical = "lots.expiry.critical"
	EventExpiryWarning  = "lots.expiry.warning"
	EventLotExpired     = "lots.expired"

	// Consumption events
	EventStockConsumed = "lots.stock.consumed"

	// Disposal events
	EventDisposalCompleted = "lots.disposal.completed"
)

// Exchange names
const (
	ExchangeLotEvents = "lots.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// ExpiryAlertEvent is published for lots entering a critical or warning
// expiry window, and for lots that have expired. Delivery (push, email,
// in-app) is the notification collaborator's concern.
type ExpiryAlertEvent struct {
	ProductID    string     `json:"product_id"`
	ProductName  string     `json:"product_name"`
	LotID        string     `json:"lot_id"`
	BatchNumber  string     `json:"batch_number"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	CurrentStock int        `json:"current_stock"`
	BranchID     *string    `json:"branch_id,omitempty"`
	DaysUntil    int        `json:"days_until"`
}

// StockConsumedEvent is published when a sale commit draws stock from a lot
type StockConsumedEvent struct {
	ProductID   string `json:"product_id"`
	LotID       string `json:"lot_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    int    `json:"quantity"`
	SaleLineID  string `json:"sale_line_id"`
	Remaining   int    `json:"remaining"`
}

// DisposalCompletedEvent is published after a disposal run
type DisposalCompletedEvent struct {
	LotIDs          []string `json:"lot_ids"`
	Method          string   `json:"method"`
	DisposedBy      string   `json:"disposed_by"`
	WrittenOffValue string   `json:"written_off_value"`
	BranchID        *string  `json:"branch_id,omitempty"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
