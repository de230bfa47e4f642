// Package notify fans trade records and safety alerts out to external
// consumers over Redis or RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/safety"
)

// EventType names the kind of payload carried by an Event.
type EventType string

// Event types
const (
	EventTrade EventType = "trade"
	EventAlert EventType = "alert"
)

// Event is the envelope published for every notification.
type Event struct {
	Type      EventType       `json:"type"`
	AccountID string          `json:"account_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// TradePayload is the JSON body of a trade event.
type TradePayload struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	RefID      string  `json:"ref_id,omitempty"`
	Action     string  `json:"action"`
	InputMint  string  `json:"input_mint"`
	OutputMint string  `json:"output_mint"`
	AmountIn   uint64  `json:"amount_in"`
	AmountOut  uint64  `json:"amount_out"`
	SolAmount  float64 `json:"sol_amount"`
	Signature  string  `json:"signature,omitempty"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

// AlertPayload is the JSON body of an alert event.
type AlertPayload struct {
	ID      string `json:"id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// TradeEvent builds the event for a trade record.
func TradeEvent(rec domain.TradeRecord) (Event, error) {
	body, err := json.Marshal(TradePayload{
		ID:         rec.ID,
		Source:     string(rec.Source),
		RefID:      rec.RefID,
		Action:     string(rec.Action),
		InputMint:  rec.InputMint,
		OutputMint: rec.OutputMint,
		AmountIn:   rec.AmountIn,
		AmountOut:  rec.AmountOut,
		SolAmount:  rec.SolAmount,
		Signature:  rec.Signature,
		Status:     string(rec.Status),
		Error:      rec.Error,
	})
	if err != nil {
		return Event{}, fmt.Errorf("marshal trade payload: %w", err)
	}
	return Event{Type: EventTrade, AccountID: rec.AccountID, Timestamp: rec.Timestamp.UTC(), Payload: body}, nil
}

// AlertEvent builds the event for a safety alert.
func AlertEvent(a safety.Alert) (Event, error) {
	body, err := json.Marshal(AlertPayload{ID: a.ID, Level: string(a.Level), Message: a.Message})
	if err != nil {
		return Event{}, fmt.Errorf("marshal alert payload: %w", err)
	}
	return Event{Type: EventAlert, AccountID: a.AccountID, Timestamp: a.Timestamp.UTC(), Payload: body}, nil
}

// Publisher delivers encoded events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

func encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}
