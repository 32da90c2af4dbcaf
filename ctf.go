package ctfbot

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// CTFEvent is one tracked competition window for one guild.
type CTFEvent struct {
	ID      int
	Name    string
	GuildID snowflake.ID

	// Discord objects created on announce. Any of them may have been deleted
	// on the Discord side since, so lookups against them can miss.
	RoleID                snowflake.ID
	TextChannelID         snowflake.ID
	VoiceChannelID        snowflake.ID
	AnnouncementMessageID snowflake.ID

	// Zero means the event never expires on its own.
	EndTime time.Time

	IsActive bool

	// Metadata about creation.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the event end time is set and not after now.
func (e *CTFEvent) Expired(now time.Time) bool {
	return !e.EndTime.IsZero() && !e.EndTime.After(now)
}

func (e *CTFEvent) Validate() error {
	if err := ValidateEventName(e.Name); err != nil {
		return err
	}

	if e.GuildID == 0 {
		return Errorf(EINVALID, "Guild required.")
	}

	return nil
}

var eventNameRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateEventName checks a proposed CTF name against the allowed charset:
// ASCII letters, digits, underscore and hyphen.
func ValidateEventName(name string) error {
	if name == "" {
		return Errorf(EINVALIDNAME, "CTF name required.")
	}

	if !eventNameRegexp.MatchString(name) {
		return Errorf(EINVALIDNAME, "CTF names may only contain letters, digits, underscores and hyphens.")
	}

	return nil
}

// EndTimeLayouts lists the accepted end time formats. Inputs carry no zone
// and are read as UTC.
var EndTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// ParseEndTime parses a user supplied end time into a UTC instant.
func ParseEndTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range EndTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, Errorf(EINVALIDTIME,
		"Invalid time format. Use YYYY-MM-DDTHH:MM:SS, YYYY-MM-DD HH:MM:SS or YYYY-MM-DDTHH:MM (UTC), e.g. 2024-12-31T23:59:59.")
}

// EventService represents a service for managing CTF events. Lookups by name
// only ever match active rows; inactive rows are kept as history.
type EventService interface {
	// Creates a new active event. Returns ECONFLICT if an active event with
	// the same name already exists in the guild.
	CreateEvent(ctx context.Context, event *CTFEvent) error

	// Retrieves the active event by name. Returns ENOTFOUND if none.
	FindEvent(ctx context.Context, guildID snowflake.ID, name string) (*CTFEvent, error)

	// Retrieves the active event announced by the given message.
	FindEventByAnnouncement(ctx context.Context, guildID, messageID snowflake.ID) (*CTFEvent, error)

	// Retrieves a list of events by filter. Also returns the total count,
	// which may differ from the number of returned events if Limit is set.
	FindEvents(ctx context.Context, filter EventFilter) ([]*CTFEvent, int, error)

	// Returns every active event whose end time is at or before now.
	FindExpiredEvents(ctx context.Context, now time.Time) ([]*CTFEvent, error)

	// Merges the set fields of upd into the active event.
	UpdateEvent(ctx context.Context, guildID snowflake.ID, name string, upd EventUpdate) (*CTFEvent, error)

	// Marks the active event inactive. Returns ENOTFOUND if no active event
	// matches, which includes an event that was already deactivated.
	DeactivateEvent(ctx context.Context, guildID snowflake.ID, name string) error

	// Permanently deletes every row, active or not, with this name in the guild.
	DeleteEvent(ctx context.Context, guildID snowflake.ID, name string) error
}

// EventFilter represents a filter passed to FindEvents().
type EventFilter struct {
	ID            *int
	GuildID       *snowflake.ID
	Name          *string
	TextChannelID *snowflake.ID
	IsActive      *bool

	// Limit and offset.
	Limit  int
	Offset int
}

// EventUpdate represents a set of fields to update on an event.
type EventUpdate struct {
	RoleID                *snowflake.ID
	TextChannelID         *snowflake.ID
	VoiceChannelID        *snowflake.ID
	AnnouncementMessageID *snowflake.ID
	EndTime               *time.Time
}
