// Package notify defines the notification payload delivered by the courier
// command.
package notify

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/aponysus/courier/validate"
)

//go:embed notification.schema.json
var schemaJSON string

// Notification is an outbound message.
type Notification struct {
	ID      string   `json:"id"`
	From    string   `json:"from"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	HTML    bool     `json:"html"`
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
}

// Decode parses one JSON notification and assigns an id when it has none.
func Decode(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return n, nil
}

// Schema returns the validation policy for the notification JSON schema.
func Schema() (*validate.Schema[Notification], error) {
	return validate.NewSchema[Notification](schemaJSON)
}

// BySubject keys cooldowns on the subject line.
func BySubject(n Notification) string { return n.Subject }

// ByRecipient keys throttling on the first recipient.
func ByRecipient(n Notification) string {
	if len(n.To) == 0 {
		return ""
	}
	return n.To[0]
}
