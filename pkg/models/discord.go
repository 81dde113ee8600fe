package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type User struct {
	ID       snowflake.ID
	Username string
}

type Guild struct {
	ID   snowflake.ID
	Name string
}

// Channel is a guild channel as seen by the logged-in account. The
// permission flags are informational.
type Channel struct {
	ID              snowflake.ID
	GuildID         snowflake.ID
	Name            string
	Type            string
	CanReadMessages bool
	CanView         bool
}

type Member struct {
	ID          snowflake.ID
	Username    string
	DisplayName string
	// Roles holds role names and may include @everyone.
	Roles     []string
	JoinedAt  time.Time
	AvatarURL string
}

type Message struct {
	ID       snowflake.ID
	AuthorID snowflake.ID
}
