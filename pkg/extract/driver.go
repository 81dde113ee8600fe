package extract

import (
	"context"
	"io"
	"log/slog"

	"github.com/kabili207/discord-member-export/pkg/config"
	"github.com/pkg/errors"
)

type Options struct {
	Config   config.Configuration
	Session  Session
	Operator Confirmer
	Notes    NoteWriter
	Out      io.Writer
	Log      *slog.Logger
}

// Execute runs one export from connect to disconnect. Configuration and
// connection failures are returned before anything else happens. Once
// connected, only a *FetchError is returned; every other failure is
// logged and the session is closed normally.
func Execute(ctx context.Context, o Options) error {
	log := o.Log
	if log == nil {
		log = slog.Default()
	}

	if err := o.Config.Validate(); err != nil {
		return err
	}

	log.Info("connecting to discord")
	if err := o.Session.Open(ctx); err != nil {
		log.Error("failed to start client", "error", err, "error_type", ErrorType(err))
		return errors.WithMessage(err, "failed to start client")
	}
	self := o.Session.Self()
	log.Info("logged in", "user", self.Username, "user_id", self.ID)

	ex := &Extractor{
		Session:   o.Session,
		Operator:  o.Operator,
		Notes:     o.Notes,
		Out:       o.Out,
		Log:       log,
		GuildID:   o.Config.GuildID,
		ChannelID: config.ChannelID,
	}
	err := ex.Run(ctx)

	var fe *FetchError
	if errors.As(err, &fe) {
		closeSession(log, o.Session)
		return err
	}
	if err != nil {
		log.Error("error", "error", err.Error())
	}
	closeSession(log, o.Session)
	return nil
}

func closeSession(log *slog.Logger, s Session) {
	if err := s.Close(); err != nil {
		log.Warn("error closing session", "error", err)
	}
}
