// Package domain contains the core types shared by the file-store bot.
package domain

import (
	"time"
)

// User is a person who has started the bot at least once.
type User struct {
	ID         int64     `json:"id" bson:"_id"`
	Username   string    `json:"username,omitempty" bson:"username,omitempty"`
	FirstName  string    `json:"first_name,omitempty" bson:"first_name,omitempty"`
	JoinedAt   time.Time `json:"joined_at" bson:"joined_at"`
	LastSeenAt time.Time `json:"last_seen_at" bson:"last_seen_at"`
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return "user"
	}
}
