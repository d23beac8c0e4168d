package models

import "time"

// SessionRecord is the persisted form of a session. Credentials are stored
// encrypted when encryption is enabled.
type SessionRecord struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider"`
	Credentials   string    `json:"-"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
