package ctfbot

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TrackedUser is an AlpacaHack account whose progress gets posted.
type TrackedUser struct {
	ID        int
	Name      string
	CreatedAt time.Time
}

func (u *TrackedUser) Validate() error {
	if u.Name == "" {
		return Errorf(EINVALID, "User name required.")
	}
	return nil
}

type TrackedUserService interface {
	// Starts tracking a user. Returns ECONFLICT if already tracked.
	CreateTrackedUser(ctx context.Context, user *TrackedUser) error

	// Lists every tracked user, oldest first.
	FindTrackedUsers(ctx context.Context) ([]*TrackedUser, error)

	// Stops tracking a user. Returns ENOTFOUND if not tracked.
	DeleteTrackedUser(ctx context.Context, name string) error
}

// ScoreSection is one titled table scraped from a user profile page.
type ScoreSection struct {
	Title  string
	Header []string
	Rows   [][]string
}

// ScoreService fetches the public profile of an AlpacaHack user.
type ScoreService interface {
	// Returns every table on the user's profile. Returns ENOTFOUND if the
	// user does not exist or the page carries no tables.
	FindScoreSections(ctx context.Context, user string) ([]*ScoreSection, error)
}

// String renders the section as fixed-width text for a code block.
func (s *ScoreSection) String() string {
	var b strings.Builder

	pad := (50 - utf8.RuneCountInString(s.Title)) / 2
	if pad < 0 {
		pad = 0
	}
	line := strings.Repeat("-", pad) + s.Title + strings.Repeat("-", pad)
	if utf8.RuneCountInString(line) < 50 {
		line += "-"
	}
	b.WriteString(line)

	writeRow := func(cells []string) {
		b.WriteByte('\n')
		for _, cell := range cells {
			fmt.Fprintf(&b, "%-20s", cell)
		}
	}

	writeRow(s.Header)
	for _, row := range s.Rows {
		writeRow(row)
	}
	return b.String()
}
