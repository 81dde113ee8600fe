package discord

import (
	"context"
	"iter"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/kabili207/discord-member-export/pkg/models"
	"github.com/pkg/errors"
)

// GatewaySession is a websocket session held open for the whole run.
type GatewaySession struct {
	s *discordgo.Session

	guilds   map[snowflake.ID]*discordgo.Guild
	channels map[snowflake.ID]*discordgo.Channel
}

func NewGateway(token string) (*GatewaySession, error) {
	if token == "" {
		return nil, errors.New("must provide a token")
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, errors.Wrap(err, "creating discord session")
	}
	s.StateEnabled = true
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsDirectMessages
	return &GatewaySession{
		s:        s,
		guilds:   make(map[snowflake.ID]*discordgo.Guild),
		channels: make(map[snowflake.ID]*discordgo.Channel),
	}, nil
}

// Open connects and waits for the READY event.
func (g *GatewaySession) Open(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	remove := g.s.AddHandlerOnce(func(_ *discordgo.Session, _ *discordgo.Ready) {
		ready <- struct{}{}
	})

	if err := g.s.Open(); err != nil {
		remove()
		return errors.Wrap(err, "opening gateway connection")
	}

	if err := awaitReady(ctx, ready); err != nil {
		remove()
		_ = g.s.Close()
		return err
	}
	return nil
}

func awaitReady(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for ready event")
	}
}

// cachedOr returns what the gateway state holds, asking the API only on
// a miss.
func cachedOr[T any](cached, fetch func() (T, error)) (T, error) {
	if v, err := cached(); err == nil {
		return v, nil
	}
	return fetch()
}

func (g *GatewaySession) Self() models.User {
	if g.s.State == nil || g.s.State.User == nil {
		return models.User{}
	}
	return models.User{ID: parseID(g.s.State.User.ID), Username: g.s.State.User.Username}
}

func (g *GatewaySession) ResolveGuild(ctx context.Context, id snowflake.ID) (models.Guild, error) {
	guild, err := cachedOr(
		func() (*discordgo.Guild, error) { return g.s.State.Guild(id.String()) },
		func() (*discordgo.Guild, error) { return g.s.Guild(id.String(), discordgo.WithContext(ctx)) },
	)
	if err != nil {
		return models.Guild{}, &lookupError{kind: "guild", id: id, err: err}
	}
	if len(guild.Roles) == 0 {
		if roles, err := g.s.GuildRoles(guild.ID, discordgo.WithContext(ctx)); err == nil {
			guild.Roles = roles
		}
	}

	g.guilds[id] = guild
	return toGuild(guild), nil
}

func (g *GatewaySession) ResolveChannel(ctx context.Context, guild models.Guild, id snowflake.ID) (models.Channel, error) {
	dg, err := g.guild(guild.ID)
	if err != nil {
		return models.Channel{}, err
	}

	ch, err := cachedOr(
		func() (*discordgo.Channel, error) { return g.s.State.Channel(id.String()) },
		func() (*discordgo.Channel, error) { return g.s.Channel(id.String(), discordgo.WithContext(ctx)) },
	)
	if err != nil {
		return models.Channel{}, &lookupError{kind: "channel", id: id, err: err}
	}
	if ch.GuildID != dg.ID {
		return models.Channel{}, &lookupError{kind: "channel", id: id, err: errors.Errorf("channel belongs to guild %s", ch.GuildID)}
	}

	g.channels[id] = ch
	return toChannel(ch, g.selfPermissions(ctx, dg, ch)), nil
}

// selfPermissions is informational; failures yield no permissions.
func (g *GatewaySession) selfPermissions(ctx context.Context, dg *discordgo.Guild, ch *discordgo.Channel) int64 {
	self := g.s.State.User
	if self == nil {
		return 0
	}
	perms, err := cachedOr(
		func() (int64, error) { return g.s.State.UserChannelPermissions(self.ID, ch.ID) },
		func() (int64, error) {
			m, err := g.s.GuildMember(dg.ID, self.ID, discordgo.WithContext(ctx))
			if err != nil {
				return 0, err
			}
			return discordgo.MemberPermissions(dg, ch, self.ID, m.Roles), nil
		},
	)
	if err != nil {
		return 0
	}
	return perms
}

func (g *GatewaySession) StreamMembers(ctx context.Context, guild models.Guild, channel models.Channel) iter.Seq2[models.Member, error] {
	dg, err := g.guild(guild.ID)
	if err != nil {
		return failedStream(err)
	}
	ch, err := g.channel(channel.ID)
	if err != nil {
		return failedStream(err)
	}
	return streamMembers(dg, ch, func(after string) ([]*discordgo.Member, error) {
		return g.s.GuildMembers(dg.ID, after, membersPageSize, discordgo.WithContext(ctx))
	})
}

func (g *GatewaySession) OpenDirectMessage(ctx context.Context, member models.Member) (models.Channel, error) {
	ch, err := g.s.UserChannelCreate(member.ID.String(), discordgo.WithContext(ctx))
	if err != nil {
		return models.Channel{}, errors.Wrap(err, "opening direct message channel")
	}
	return toChannel(ch, 0), nil
}

func (g *GatewaySession) RecentHistory(ctx context.Context, channel models.Channel, limit int) ([]models.Message, error) {
	msgs, err := g.s.ChannelMessages(channel.ID.String(), limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "reading channel history")
	}
	return toMessages(msgs), nil
}

func (g *GatewaySession) Close() error {
	return g.s.Close()
}

func (g *GatewaySession) guild(id snowflake.ID) (*discordgo.Guild, error) {
	dg, ok := g.guilds[id]
	if !ok {
		return nil, &lookupError{kind: "guild", id: id}
	}
	return dg, nil
}

func (g *GatewaySession) channel(id snowflake.ID) (*discordgo.Channel, error) {
	ch, ok := g.channels[id]
	if !ok {
		return nil, &lookupError{kind: "channel", id: id}
	}
	return ch, nil
}
