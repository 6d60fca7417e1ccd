package amqp

import (
	"encoding/json"
	"time"
)

// NotificationMessage is the wire form of a notification event. The worker
// persists it on delivery; the payload carries everything needed so the
// worker never has to call back into the producer.
type NotificationMessage struct {
	OwnerID   string    `json:"owner_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNotificationMessage(ownerID, notificationType, title, message string) *NotificationMessage {
	return &NotificationMessage{
		OwnerID:   ownerID,
		Type:      notificationType,
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
