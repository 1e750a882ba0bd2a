package models

import (
	"time"
)

// Player represents a game account holding a point balance. The ID is the
// platform account identifier (EOS ID for ARK), optionally linked to a
// Discord account for the bot surface.
type Player struct {
	ID        string    `db:"id"`
	DiscordID *int64    `db:"discord_id"`
	Balance   int64     `db:"balance"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
