package extract

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/kabili207/discord-member-export/pkg/models"
	"github.com/pkg/errors"
)

const ConfirmPrompt = "Generate markdown file for this member? (y/n): "

// Extractor walks the members of one channel and lets the operator
// decide which of them get a note.
type Extractor struct {
	Session   Session
	Operator  Confirmer
	Notes     NoteWriter
	Out       io.Writer
	Log       *slog.Logger
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	// Now is used for the index timestamp; defaults to time.Now.
	Now func() time.Time
}

// Run processes the channel's members and rebuilds the index. A guild or
// channel that cannot be resolved is logged and ends the run without an
// error. Stream failures come back as *FetchError. Cancelling ctx stops
// the run before the next member is shown.
func (e *Extractor) Run(ctx context.Context) error {
	log := e.logger()

	guild, err := e.Session.ResolveGuild(ctx, e.GuildID)
	if err != nil {
		log.Error("could not find guild", "guild_id", e.GuildID, "error", err)
		return nil
	}
	log.Info("processing members", "guild", guild.Name, "guild_id", guild.ID)

	channel, err := e.Session.ResolveChannel(ctx, guild, e.ChannelID)
	if err != nil {
		log.Error("could not find channel", "channel_id", e.ChannelID, "error", err)
		return nil
	}
	log.Info("using channel for member scraping", "channel", channel.Name, "channel_id", channel.ID, "channel_type", channel.Type)
	log.Info("channel permissions", "can_read_messages", channel.CanReadMessages, "can_view_channel", channel.CanView)

	log.Info("starting member fetch")
	for member, err := range e.Session.StreamMembers(ctx, guild, channel) {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "member fetch interrupted")
		}
		if err != nil {
			log.Error("error during member fetch", "error", err, "error_type", ErrorType(err))
			return &FetchError{Err: errors.WithStack(err)}
		}
		if err := e.processMember(ctx, member); err != nil {
			return err
		}
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	path, written, err := e.Notes.BuildIndex(now())
	if err != nil {
		return err
	}
	if written {
		log.Info("created index file", "path", path)
	}
	log.Info("done")
	return nil
}

func (e *Extractor) processMember(ctx context.Context, m models.Member) error {
	log := e.logger()
	log.Info("found member", "username", m.Username)

	rec := BuildRecord(m, e.hasDirectMessages(ctx, m))
	// a cancelled lookup reads as "no DM", so don't show or prompt for it
	if ctx.Err() != nil {
		return errors.Wrap(ctx.Err(), "member prompt interrupted")
	}
	if err := WriteRecord(e.Out, rec); err != nil {
		return errors.Wrap(err, "printing member record")
	}

	ok, err := e.Operator.Confirm(ConfirmPrompt)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	path, err := e.Notes.WriteMember(rec)
	if err != nil {
		return err
	}
	log.Info("created file", "path", path)
	return nil
}

// hasDirectMessages reports whether the logged-in user has exchanged at
// least one direct message with m. Every failure means no.
func (e *Extractor) hasDirectMessages(ctx context.Context, m models.Member) bool {
	dm, err := e.Session.OpenDirectMessage(ctx, m)
	if err != nil {
		return false
	}
	msgs, err := e.Session.RecentHistory(ctx, dm, 1)
	if err != nil {
		return false
	}
	return len(msgs) > 0
}

func (e *Extractor) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}
