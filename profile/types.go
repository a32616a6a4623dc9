// Package profile tracks per-user metadata updated on every attributed
// inbound event.
package profile

import (
	"strconv"

	"github.com/quailyquaily/telegramdock/internal/snapshot"
)

// Profile is the latest known identity and activity of one user. Optional
// platform fields are empty when the platform did not supply them.
type Profile struct {
	UserID       int64         `json:"user_id"`
	Username     string        `json:"username"`
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	LanguageCode string        `json:"language_code"`
	LastSeen     snapshot.Time `json:"last_seen"`
	MessageCount int64         `json:"message_count"`
}

// Snapshot is the persisted form: profiles keyed by decimal user id.
type Snapshot map[string]Profile

func snapshotKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
