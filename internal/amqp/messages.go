package amqp

import (
	"encoding/json"
	"time"
)

// AlertMessage carries one budget alert from the API to the notifier
// worker. It is self-contained so the worker can send the e-mail without
// another database round trip.
type AlertMessage struct {
	User        string    `json:"user"`
	Email       string    `json:"email"`
	Severity    string    `json:"severity"`
	PercentUsed float64   `json:"percent_used"`
	Spent       float64   `json:"spent"`
	Limit       float64   `json:"limit"`
	Remaining   float64   `json:"remaining"`
	PeriodLabel string    `json:"period"`
	Timestamp   time.Time `json:"timestamp"`
}

func (m *AlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AlertMessageFromJSON(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
