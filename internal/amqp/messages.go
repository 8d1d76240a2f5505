package amqp

import (
	"encoding/json"
	"time"
)

// ReturnCompletedMessage announces that a return reached the completed state.
// It carries only the ID and version; the worker fetches the full record from
// the store before calculating.
type ReturnCompletedMessage struct {
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReturnCompletedMessage(id, version int64) *ReturnCompletedMessage {
	return &ReturnCompletedMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *ReturnCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReturnCompletedMessageFromJSON(data []byte) (*ReturnCompletedMessage, error) {
	var msg ReturnCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
