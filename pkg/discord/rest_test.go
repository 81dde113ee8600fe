package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/kabili207/discord-member-export/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken   = "user-token"
	guildID     = "100"
	channelID   = "200"
	memberRole  = "300"
	selfID      = "1"
	viewChannel = "1024"
)

type fakeAPI struct {
	*httptest.Server
	members   []map[string]any
	dmHistory map[string][]map[string]any
	failPage  bool
	pageCalls []string
	requests  []string
}

func user(id, name string) map[string]any {
	return map[string]any{"id": id, "username": name}
}

func member(id, name string, roles ...string) map[string]any {
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{"user": user(id, name), "roles": roles, "joined_at": "2024-01-02T03:04:05.000000+00:00"}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{dmHistory: map[string][]map[string]any{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/@me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, user(selfID, "me"))
	})
	mux.HandleFunc("GET /guilds/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != guildID {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"code": 10004, "message": "Unknown Guild"})
			return
		}
		writeJSON(w, map[string]any{
			"id":       guildID,
			"name":     "wpamesh",
			"owner_id": "9",
			"roles": []map[string]any{
				{"id": guildID, "name": "@everyone", "permissions": viewChannel},
				{"id": memberRole, "name": "Mesh", "permissions": "0"},
			},
		})
	})
	mux.HandleFunc("GET /guilds/{id}/members/{user}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, member(r.PathValue("user"), "me", memberRole))
	})
	mux.HandleFunc("GET /guilds/{id}/members", func(w http.ResponseWriter, r *http.Request) {
		after := r.URL.Query().Get("after")
		api.pageCalls = append(api.pageCalls, after)
		if api.failPage && after != "" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var page []map[string]any
		for _, m := range api.members {
			id := m["user"].(map[string]any)["id"].(string)
			if after != "" && mustInt(id) <= mustInt(after) {
				continue
			}
			if len(page) == limit {
				break
			}
			page = append(page, m)
		}
		if page == nil {
			page = []map[string]any{}
		}
		writeJSON(w, page)
	})
	mux.HandleFunc("GET /channels/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case channelID:
			writeJSON(w, map[string]any{
				"id":       channelID,
				"guild_id": guildID,
				"name":     "general",
				"type":     0,
				"permission_overwrites": []map[string]any{
					{"id": guildID, "type": 0, "allow": "0", "deny": viewChannel},
					{"id": memberRole, "type": 0, "allow": viewChannel, "deny": "0"},
				},
			})
		case "201":
			writeJSON(w, map[string]any{"id": "201", "guild_id": "999", "name": "elsewhere", "type": 0})
		default:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]any{"code": 10003, "message": "Unknown Channel"})
		}
	})
	mux.HandleFunc("POST /users/@me/channels", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RecipientID string `json:"recipient_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RecipientID == "13" {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"code": 50007, "message": "Cannot send messages to this user"})
			return
		}
		// DM channel ids are the recipient id prefixed with 9
		writeJSON(w, map[string]any{"id": "9" + body.RecipientID, "type": 1})
	})
	mux.HandleFunc("GET /channels/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		msgs := api.dmHistory[r.PathValue("id")]
		if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && len(msgs) > limit {
			msgs = msgs[:limit]
		}
		if msgs == nil {
			msgs = []map[string]any{}
		}
		writeJSON(w, msgs)
	})

	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.requests = append(api.requests, r.Method+" "+r.URL.Path)
		if r.Header.Get("Authorization") != testToken {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]any{"code": 0, "message": "401: Unauthorized"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(api.Close)
	return api
}

func mustInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		panic(err)
	}
	return i
}

func newTestREST(t *testing.T, api *fakeAPI, token string) *RESTSession {
	t.Helper()
	s, err := NewREST(api.Client(), token)
	require.NoError(t, err)
	s.base = api.URL
	return s
}

func openTestREST(t *testing.T, api *fakeAPI) (*RESTSession, models.Guild, models.Channel) {
	t.Helper()
	ctx := context.Background()
	s := newTestREST(t, api, testToken)
	require.NoError(t, s.Open(ctx))
	g, err := s.ResolveGuild(ctx, snowflake.ID(100))
	require.NoError(t, err)
	c, err := s.ResolveChannel(ctx, g, snowflake.ID(200))
	require.NoError(t, err)
	return s, g, c
}

func TestNewREST(t *testing.T) {
	_, err := NewREST(nil, "x")
	assert.EqualError(t, err, "must provide an http client")

	_, err = NewREST(http.DefaultClient, "")
	assert.EqualError(t, err, "must provide a token")
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		in         string
		wantHeader string
	}{
		{in: "mfa.abc", wantHeader: "mfa.abc"},
		{in: "Bot abc", wantHeader: "Bot abc"},
		{in: "Bearer abc", wantHeader: "Bearer abc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, err := NewREST(http.DefaultClient, tt.in)
			require.NoError(t, err)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			s.setAuthHeader(req)
			assert.Equal(t, tt.wantHeader, req.Header.Get("Authorization"))
		})
	}
}

func TestOpen(t *testing.T) {
	api := newFakeAPI(t)

	s := newTestREST(t, api, testToken)
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, models.User{ID: 1, Username: "me"}, s.Self())
}

func TestOpenBadToken(t *testing.T) {
	api := newFakeAPI(t)

	s := newTestREST(t, api, "wrong")
	err := s.Open(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "401: Unauthorized", apiErr.Message)
}

func TestResolve(t *testing.T) {
	api := newFakeAPI(t)
	ctx := context.Background()
	s := newTestREST(t, api, testToken)
	require.NoError(t, s.Open(ctx))

	_, err := s.ResolveGuild(ctx, snowflake.ID(0))
	assert.ErrorContains(t, err, "guild 0 not found")

	g, err := s.ResolveGuild(ctx, snowflake.ID(100))
	require.NoError(t, err)
	assert.Equal(t, models.Guild{ID: 100, Name: "wpamesh"}, g)

	c, err := s.ResolveChannel(ctx, g, snowflake.ID(200))
	require.NoError(t, err)
	assert.Equal(t, "general", c.Name)
	assert.Equal(t, "TextChannel", c.Type)
	assert.True(t, c.CanView)

	_, err = s.ResolveChannel(ctx, g, snowflake.ID(404))
	assert.ErrorContains(t, err, "channel 404 not found")

	_, err = s.ResolveChannel(ctx, g, snowflake.ID(201))
	assert.ErrorContains(t, err, "belongs to guild 999")
}

func collect(t *testing.T, s *RESTSession, g models.Guild, c models.Channel) ([]models.Member, error) {
	t.Helper()
	var out []models.Member
	for m, err := range s.StreamMembers(context.Background(), g, c) {
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

func TestStreamMembersFiltersByChannel(t *testing.T) {
	api := newFakeAPI(t)
	api.members = []map[string]any{
		member("10", "alice", memberRole),
		member("11", "bob"),
		member("9", "owner"),
	}
	api.members[0]["nick"] = "Alice"
	s, g, c := openTestREST(t, api)

	got, err := collect(t, s, g, c)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "alice", got[0].Username)
	assert.Equal(t, "Alice", got[0].DisplayName)
	assert.Equal(t, []string{"@everyone", "Mesh"}, got[0].Roles)
	assert.Equal(t, 2024, got[0].JoinedAt.Year())
	assert.Equal(t, "", got[0].AvatarURL)
	assert.Equal(t, "owner", got[1].Username)
}

func TestStreamMembersPages(t *testing.T) {
	defer func(n int) { membersPageSize = n }(membersPageSize)
	membersPageSize = 2

	api := newFakeAPI(t)
	for i := 10; i < 15; i++ {
		api.members = append(api.members, member(strconv.Itoa(i), fmt.Sprintf("user%d", i), memberRole))
	}
	s, g, c := openTestREST(t, api)

	got, err := collect(t, s, g, c)
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.Equal(t, []string{"", "11", "13"}, api.pageCalls)
}

func TestStreamMembersPageError(t *testing.T) {
	defer func(n int) { membersPageSize = n }(membersPageSize)
	membersPageSize = 1

	api := newFakeAPI(t)
	api.failPage = true
	api.members = []map[string]any{member("10", "alice", memberRole), member("11", "bob", memberRole)}
	s, g, c := openTestREST(t, api)

	got, err := collect(t, s, g, c)
	require.Error(t, err)
	assert.Len(t, got, 1)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestStreamMembersStopsWhenConsumerStops(t *testing.T) {
	api := newFakeAPI(t)
	api.members = []map[string]any{member("10", "alice", memberRole), member("11", "bob", memberRole)}
	s, g, c := openTestREST(t, api)

	n := 0
	for _, err := range s.StreamMembers(context.Background(), g, c) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestDirectMessageHistory(t *testing.T) {
	api := newFakeAPI(t)
	api.dmHistory["910"] = []map[string]any{
		{"id": "556", "author": user(selfID, "me")},
		{"id": "555", "author": user("10", "alice")},
	}
	s, _, _ := openTestREST(t, api)
	ctx := context.Background()

	dm, err := s.OpenDirectMessage(ctx, models.Member{ID: 10})
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(910), dm.ID)
	assert.Equal(t, "DMChannel", dm.Type)

	msgs, err := s.RecentHistory(ctx, dm, 1)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{{ID: 556, AuthorID: 1}}, msgs)

	quiet, err := s.OpenDirectMessage(ctx, models.Member{ID: 11})
	require.NoError(t, err)
	msgs, err = s.RecentHistory(ctx, quiet, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = s.OpenDirectMessage(ctx, models.Member{ID: 13})
	assert.ErrorContains(t, err, "Cannot send messages to this user")
}
