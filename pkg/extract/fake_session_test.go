package extract

import (
	"context"
	"iter"

	"github.com/disgoorg/snowflake/v2"
	"github.com/kabili207/discord-member-export/pkg/models"
	"github.com/pkg/errors"
)

type fakeSession struct {
	openErr    error
	guilds     map[snowflake.ID]models.Guild
	channels   map[snowflake.ID]models.Channel
	members    []models.Member
	streamErr  error // yielded after all members
	dmErr      map[snowflake.ID]error
	historyErr map[snowflake.ID]error
	history    map[snowflake.ID][]models.Message

	opened, closed bool
	yielded        int
}

func (f *fakeSession) Open(context.Context) error {
	f.opened = true
	return f.openErr
}

func (f *fakeSession) Self() models.User { return models.User{ID: 1, Username: "me"} }

func (f *fakeSession) ResolveGuild(_ context.Context, id snowflake.ID) (models.Guild, error) {
	g, ok := f.guilds[id]
	if !ok {
		return models.Guild{}, errors.Errorf("guild %s not found", id)
	}
	return g, nil
}

func (f *fakeSession) ResolveChannel(_ context.Context, _ models.Guild, id snowflake.ID) (models.Channel, error) {
	c, ok := f.channels[id]
	if !ok {
		return models.Channel{}, errors.Errorf("channel %s not found", id)
	}
	return c, nil
}

func (f *fakeSession) StreamMembers(context.Context, models.Guild, models.Channel) iter.Seq2[models.Member, error] {
	return func(yield func(models.Member, error) bool) {
		for _, m := range f.members {
			f.yielded++
			if !yield(m, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield(models.Member{}, f.streamErr)
		}
	}
}

func (f *fakeSession) OpenDirectMessage(_ context.Context, m models.Member) (models.Channel, error) {
	if err := f.dmErr[m.ID]; err != nil {
		return models.Channel{}, err
	}
	return models.Channel{ID: m.ID + 1000}, nil
}

func (f *fakeSession) RecentHistory(_ context.Context, c models.Channel, limit int) ([]models.Message, error) {
	member := c.ID - 1000
	if err := f.historyErr[member]; err != nil {
		return nil, err
	}
	msgs := f.history[member]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

// transcriptOperator answers prompts from a fixed list and records the
// prompt in the same transcript the records are printed to.
type transcriptOperator struct {
	out     *transcript
	answers []string
	err     error
	// onConfirm runs after the prompt is recorded, before answering.
	onConfirm func()
}

func (o *transcriptOperator) Confirm(q string) (bool, error) {
	o.out.WriteString("<PROMPT " + q + ">")
	if o.onConfirm != nil {
		o.onConfirm()
	}
	if len(o.answers) == 0 {
		if o.err != nil {
			return false, o.err
		}
		return false, nil
	}
	a := o.answers[0]
	o.answers = o.answers[1:]
	return a == "y" || a == "Y", nil
}

type transcript struct {
	buf []byte
}

func (t *transcript) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	return len(p), nil
}

func (t *transcript) WriteString(s string) {
	t.buf = append(t.buf, s...)
}

func (t *transcript) String() string { return string(t.buf) }
