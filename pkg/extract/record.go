package extract

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kabili207/discord-member-export/pkg/models"
)

const (
	joinTimeLayout     = "2006-01-02 15:04:05-07:00"
	joinTimeLayoutFrac = "2006-01-02 15:04:05.000000-07:00"
	recordRule         = "=================================================="
)

func BuildRecord(m models.Member, hasDM bool) models.MemberRecord {
	roles := make([]string, 0, len(m.Roles))
	for _, r := range m.Roles {
		if r != models.EveryoneRole {
			roles = append(roles, r)
		}
	}

	joined := models.UnknownJoinTime
	if !m.JoinedAt.IsZero() {
		joined = formatJoinTime(m.JoinedAt)
	}

	avatar := models.NoAvatar
	if m.AvatarURL != "" {
		avatar = m.AvatarURL
	}

	return models.MemberRecord{
		Username:    m.Username,
		DisplayName: m.DisplayName,
		ID:          m.ID,
		Roles:       roles,
		JoinedAt:    joined,
		AvatarURL:   avatar,
		HasDM:       hasDM,
	}
}

// formatJoinTime prints microseconds in full, or not at all when the
// time has none.
func formatJoinTime(t time.Time) string {
	if t.Nanosecond()/1000 == 0 {
		return t.Format(joinTimeLayout)
	}
	return t.Format(joinTimeLayoutFrac)
}

func WriteRecord(w io.Writer, rec models.MemberRecord) error {
	hasDM := "No"
	if rec.HasDM {
		hasDM = "Yes"
	}
	_, err := fmt.Fprintf(w, "\n%s\nUsername: %s\nDisplay Name: %s\nDiscord ID: %s\nRoles: %s\nJoined At: %s\nAvatar URL: %s\nHas DM with you: %s\n",
		recordRule,
		rec.Username,
		rec.DisplayName,
		rec.ID,
		strings.Join(rec.Roles, ", "),
		rec.JoinedAt,
		rec.AvatarURL,
		hasDM,
	)
	return err
}
