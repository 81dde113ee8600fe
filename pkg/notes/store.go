package notes

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/kabili207/discord-member-export/pkg/models"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	IndexFileName  = "discord_members_index.md"
	indexTitle     = "# Discord Members Index"
	timeLayout     = "2006-01-02 15:04:05"
	frontMatterSep = "---\n"
)

// Store writes member notes and the index into one output directory.
type Store struct {
	fs  afero.Fs
	dir string
	log *slog.Logger
}

// New returns a Store rooted at dir, creating the directory if needed.
func New(fs afero.Fs, dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %q", dir)
	}
	return &Store{fs: fs, dir: dir, log: logger}, nil
}

func (s *Store) Dir() string { return s.dir }

// WriteMember writes the note for rec and returns its path. An existing
// note with the same name is overwritten.
func (s *Store) WriteMember(rec models.MemberRecord) (string, error) {
	name := noteFileName(rec.Username)
	if name == "" {
		name = rec.ID.String()
	}
	path := filepath.Join(s.dir, name+".md")

	// values are written unquoted, exactly as Discord returns them
	var buf bytes.Buffer
	buf.WriteString(frontMatterSep)
	fmt.Fprintf(&buf, "discord_username: %s\ndiscord_id: %d\n", rec.Username, uint64(rec.ID))
	buf.WriteString(frontMatterSep)

	if ok, _ := afero.Exists(s.fs, path); ok {
		s.log.Warn("overwriting existing note", "path", path, "discord_id", rec.ID)
	}
	if err := afero.WriteFile(s.fs, path, buf.Bytes(), 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %q", path)
	}
	return path, nil
}

// BuildIndex links every Markdown file currently in the directory,
// an index left by an earlier run included. It reports false without
// writing anything when there is none.
func (s *Store) BuildIndex(now time.Time) (string, bool, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return "", false, errors.Wrapf(err, "listing %q", s.dir)
	}

	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasSuffix(n, ".md") {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ".md"))
	}
	if len(names) == 0 {
		return "", false, nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n\nGenerated on %s\n", indexTitle, now.Format(timeLayout))
	for _, n := range names {
		fmt.Fprintf(&buf, "- [[%s]]\n", n)
	}

	path := filepath.Join(s.dir, IndexFileName)
	if err := afero.WriteFile(s.fs, path, buf.Bytes(), 0o644); err != nil {
		return "", false, errors.Wrapf(err, "writing %q", path)
	}
	return path, true, nil
}

// noteFileName strips characters that cannot appear in a single path
// element.
func noteFileName(username string) string {
	s := []rune(username)
	j := 0
	for _, r := range s {
		if r == '/' || r == '\\' || r == ':' || unicode.IsControl(r) {
			continue
		}
		s[j] = r
		j++
	}
	name := strings.TrimSpace(string(s[:j]))
	if name == "." || name == ".." {
		return ""
	}
	return name
}
