package domain

import "time"

// RelaySession tracks whether a user's support conversation is open.
type RelaySession struct {
	UserID    int64      `json:"user_id" bson:"_id"`
	SessionID string     `json:"session_id" bson:"session_id"`
	Active    bool       `json:"active" bson:"active"`
	OpenedAt  time.Time  `json:"opened_at" bson:"opened_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// RelayCorrelation maps a message in the operator's chat back to the user
// whose conversation produced it.
type RelayCorrelation struct {
	OperatorMessageID int       `json:"operator_message_id" bson:"_id"`
	UserID            int64     `json:"user_id" bson:"user_id"`
	SessionID         string    `json:"session_id" bson:"session_id"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}
