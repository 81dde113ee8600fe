package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/kabili207/discord-member-export/pkg/models"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

var (
	discordAPIBase string = "https://discord.com/api/v10"
)

// HTTPClient represents the functionality we need from an *http.Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// APIError is a non-2xx answer from the Discord API.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("discord api: HTTP %d", e.Status)
	}
	return fmt.Sprintf("discord api: HTTP %d: %d: %s", e.Status, e.Code, e.Message)
}

// RESTSession talks to the HTTP API only. It never opens a gateway
// connection.
type RESTSession struct {
	c     HTTPClient
	base  string
	token *oauth2.Token

	self      *discordgo.User
	guilds    map[snowflake.ID]*discordgo.Guild
	selfRoles map[snowflake.ID][]string
	channels  map[snowflake.ID]*discordgo.Channel
}

// NewREST returns a RESTSession. A token prefixed with "Bot " or
// "Bearer " is sent with that scheme; anything else is a user token and
// is sent as is.
func NewREST(c HTTPClient, token string) (*RESTSession, error) {
	if c == nil {
		return nil, errors.New("must provide an http client")
	}
	if token == "" {
		return nil, errors.New("must provide a token")
	}
	return &RESTSession{
		c:         c,
		base:      discordAPIBase,
		token:     parseToken(token),
		guilds:    make(map[snowflake.ID]*discordgo.Guild),
		selfRoles: make(map[snowflake.ID][]string),
		channels:  make(map[snowflake.ID]*discordgo.Channel),
	}, nil
}

func parseToken(token string) *oauth2.Token {
	for _, scheme := range []string{"Bot", "Bearer"} {
		if rest, ok := strings.CutPrefix(token, scheme+" "); ok {
			return &oauth2.Token{TokenType: scheme, AccessToken: rest}
		}
	}
	return &oauth2.Token{AccessToken: token}
}

func (r *RESTSession) setAuthHeader(req *http.Request) {
	if r.token.TokenType == "" {
		req.Header.Set("Authorization", r.token.AccessToken)
		return
	}
	r.token.SetAuthHeader(req)
}

func (r *RESTSession) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base+path, rdr)
	if err != nil {
		return errors.Wrapf(err, "building request for %q", path)
	}
	r.setAuthHeader(req)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/kabili207/discord-member-export, 0.1.0)")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.c.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling %s %q", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return errors.WithStack(apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decoding response of %q", path)
	}
	return nil
}

// Open checks the token by fetching the current user.
func (r *RESTSession) Open(ctx context.Context) error {
	var u discordgo.User
	if err := r.do(ctx, http.MethodGet, "/users/@me", nil, &u); err != nil {
		return errors.Wrap(err, "failed getting user info")
	}
	r.self = &u
	return nil
}

func (r *RESTSession) Self() models.User {
	if r.self == nil {
		return models.User{}
	}
	return models.User{ID: parseID(r.self.ID), Username: r.self.Username}
}

func (r *RESTSession) ResolveGuild(ctx context.Context, id snowflake.ID) (models.Guild, error) {
	var g discordgo.Guild
	if err := r.do(ctx, http.MethodGet, "/guilds/"+id.String(), nil, &g); err != nil {
		return models.Guild{}, &lookupError{kind: "guild", id: id, err: err}
	}
	r.guilds[id] = &g

	if r.self != nil {
		var m discordgo.Member
		if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/members/%s", g.ID, r.self.ID), nil, &m); err == nil {
			r.selfRoles[id] = m.Roles
		}
	}
	return toGuild(&g), nil
}

func (r *RESTSession) ResolveChannel(ctx context.Context, guild models.Guild, id snowflake.ID) (models.Channel, error) {
	g, ok := r.guilds[guild.ID]
	if !ok {
		return models.Channel{}, &lookupError{kind: "guild", id: guild.ID}
	}

	var ch discordgo.Channel
	if err := r.do(ctx, http.MethodGet, "/channels/"+id.String(), nil, &ch); err != nil {
		return models.Channel{}, &lookupError{kind: "channel", id: id, err: err}
	}
	if ch.GuildID != g.ID {
		return models.Channel{}, &lookupError{kind: "channel", id: id, err: errors.Errorf("channel belongs to guild %s", ch.GuildID)}
	}
	r.channels[id] = &ch

	var perms int64
	if roles, ok := r.selfRoles[guild.ID]; ok {
		perms = discordgo.MemberPermissions(g, &ch, r.self.ID, roles)
	}
	return toChannel(&ch, perms), nil
}

func (r *RESTSession) StreamMembers(ctx context.Context, guild models.Guild, channel models.Channel) iter.Seq2[models.Member, error] {
	g, ok := r.guilds[guild.ID]
	if !ok {
		return failedStream(&lookupError{kind: "guild", id: guild.ID})
	}
	ch, ok := r.channels[channel.ID]
	if !ok {
		return failedStream(&lookupError{kind: "channel", id: channel.ID})
	}
	return streamMembers(g, ch, func(after string) ([]*discordgo.Member, error) {
		v := url.Values{"limit": []string{strconv.Itoa(membersPageSize)}}
		if after != "" {
			v.Set("after", after)
		}
		var page []*discordgo.Member
		err := r.do(ctx, http.MethodGet, "/guilds/"+g.ID+"/members?"+v.Encode(), nil, &page)
		return page, err
	})
}

func (r *RESTSession) OpenDirectMessage(ctx context.Context, member models.Member) (models.Channel, error) {
	var ch discordgo.Channel
	body := map[string]string{"recipient_id": member.ID.String()}
	if err := r.do(ctx, http.MethodPost, "/users/@me/channels", body, &ch); err != nil {
		return models.Channel{}, errors.Wrap(err, "opening direct message channel")
	}
	return toChannel(&ch, 0), nil
}

func (r *RESTSession) RecentHistory(ctx context.Context, channel models.Channel, limit int) ([]models.Message, error) {
	var msgs []*discordgo.Message
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", channel.ID, limit)
	if err := r.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, errors.Wrap(err, "reading channel history")
	}
	return toMessages(msgs), nil
}

// Close is a no-op; there is no connection to tear down.
func (r *RESTSession) Close() error { return nil }
