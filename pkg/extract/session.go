package extract

import (
	"context"
	"iter"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/kabili207/discord-member-export/pkg/models"
)

// Session is what the exporter needs from a logged-in chat session.
type Session interface {
	// Open authenticates and blocks until the session is ready.
	Open(ctx context.Context) error
	Self() models.User
	ResolveGuild(ctx context.Context, id snowflake.ID) (models.Guild, error)
	ResolveChannel(ctx context.Context, guild models.Guild, id snowflake.ID) (models.Channel, error)
	// StreamMembers yields the guild members that can see channel. The
	// sequence is lazy and may only be ranged over once.
	StreamMembers(ctx context.Context, guild models.Guild, channel models.Channel) iter.Seq2[models.Member, error]
	OpenDirectMessage(ctx context.Context, member models.Member) (models.Channel, error)
	RecentHistory(ctx context.Context, channel models.Channel, limit int) ([]models.Message, error)
	Close() error
}

type Confirmer interface {
	Confirm(question string) (bool, error)
}

type NoteWriter interface {
	WriteMember(rec models.MemberRecord) (string, error)
	BuildIndex(now time.Time) (string, bool, error)
}
