package models

import "github.com/disgoorg/snowflake/v2"

const (
	EveryoneRole    = "@everyone"
	UnknownJoinTime = "Unknown"
	NoAvatar        = "No avatar"
)

// MemberRecord is the printable summary of one streamed member.
type MemberRecord struct {
	Username    string
	DisplayName string
	ID          snowflake.ID
	Roles       []string
	JoinedAt    string
	AvatarURL   string
	HasDM       bool
}
