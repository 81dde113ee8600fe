package discord

import (
	"cmp"
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/kabili207/discord-member-export/pkg/models"
	"github.com/pkg/errors"
)

var membersPageSize = 1000

var channelTypeNames = map[discordgo.ChannelType]string{
	discordgo.ChannelTypeGuildText:          "TextChannel",
	discordgo.ChannelTypeDM:                 "DMChannel",
	discordgo.ChannelTypeGuildVoice:         "VoiceChannel",
	discordgo.ChannelTypeGroupDM:            "GroupChannel",
	discordgo.ChannelTypeGuildCategory:      "CategoryChannel",
	discordgo.ChannelTypeGuildNews:          "NewsChannel",
	discordgo.ChannelTypeGuildStageVoice:    "StageChannel",
	discordgo.ChannelTypeGuildForum:         "ForumChannel",
	discordgo.ChannelTypeGuildPublicThread:  "Thread",
	discordgo.ChannelTypeGuildPrivateThread: "Thread",
}

func channelTypeName(t discordgo.ChannelType) string {
	if n, ok := channelTypeNames[t]; ok {
		return n
	}
	return "UnknownChannel"
}

func parseID(s string) snowflake.ID {
	id, _ := snowflake.Parse(s)
	return id
}

func toGuild(g *discordgo.Guild) models.Guild {
	return models.Guild{ID: parseID(g.ID), Name: g.Name}
}

// toChannel converts c, filling in the permission flags from perms.
func toChannel(c *discordgo.Channel, perms int64) models.Channel {
	return models.Channel{
		ID:              parseID(c.ID),
		GuildID:         parseID(c.GuildID),
		Name:            c.Name,
		Type:            channelTypeName(c.Type),
		CanReadMessages: perms&discordgo.PermissionReadMessageHistory != 0,
		CanView:         perms&discordgo.PermissionViewChannel != 0,
	}
}

// toMember converts m. Role names are looked up in g and listed from the
// lowest position up, starting with @everyone.
func toMember(g *discordgo.Guild, m *discordgo.Member) models.Member {
	held := make(map[string]bool, len(m.Roles)+1)
	held[g.ID] = true
	for _, id := range m.Roles {
		held[id] = true
	}

	var owned []*discordgo.Role
	for _, r := range g.Roles {
		if held[r.ID] {
			owned = append(owned, r)
		}
	}
	slices.SortStableFunc(owned, func(a, b *discordgo.Role) int {
		switch {
		case a.ID == b.ID:
			return 0
		case a.ID == g.ID:
			return -1
		case b.ID == g.ID:
			return 1
		}
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return cmp.Compare(parseID(a.ID), parseID(b.ID))
	})

	roles := make([]string, 0, len(owned))
	for _, r := range owned {
		roles = append(roles, r.Name)
	}

	u := m.User
	display := u.Username
	switch {
	case m.Nick != "":
		display = m.Nick
	case u.GlobalName != "":
		display = u.GlobalName
	}

	var avatar string
	if u.Avatar != "" {
		avatar = u.AvatarURL("")
	}

	return models.Member{
		ID:          parseID(u.ID),
		Username:    u.Username,
		DisplayName: display,
		Roles:       roles,
		JoinedAt:    m.JoinedAt,
		AvatarURL:   avatar,
	}
}

func toMessages(msgs []*discordgo.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		msg := models.Message{ID: parseID(m.ID)}
		if m.Author != nil {
			msg.AuthorID = parseID(m.Author.ID)
		}
		out = append(out, msg)
	}
	return out
}

// canView reports whether the member may see channel, using the
// platform library's overwrite resolution.
func canView(g *discordgo.Guild, c *discordgo.Channel, m *discordgo.Member) bool {
	perms := discordgo.MemberPermissions(g, c, m.User.ID, m.Roles)
	return perms&discordgo.PermissionViewChannel != 0
}

type memberPage func(after string) ([]*discordgo.Member, error)

// streamMembers pages through the guild member list, yielding the members
// that can view c. A failed page ends the sequence with its error.
func streamMembers(g *discordgo.Guild, c *discordgo.Channel, page memberPage) func(yield func(models.Member, error) bool) {
	return func(yield func(models.Member, error) bool) {
		after := ""
		for {
			members, err := page(after)
			if err != nil {
				yield(models.Member{}, errors.Wrap(err, "fetching guild members"))
				return
			}
			for _, m := range members {
				if m.User == nil {
					continue
				}
				after = m.User.ID
				if !canView(g, c, m) {
					continue
				}
				if !yield(toMember(g, m), nil) {
					return
				}
			}
			if len(members) < membersPageSize {
				return
			}
		}
	}
}

func failedStream(err error) func(yield func(models.Member, error) bool) {
	return func(yield func(models.Member, error) bool) {
		yield(models.Member{}, errors.WithStack(err))
	}
}

type lookupError struct {
	kind string
	id   snowflake.ID
	err  error
}

func (e *lookupError) Error() string {
	if e.err != nil {
		return e.kind + " " + e.id.String() + " not found: " + e.err.Error()
	}
	return e.kind + " " + e.id.String() + " not found"
}

func (e *lookupError) Unwrap() error { return e.err }
