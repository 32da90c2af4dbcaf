package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
)

// Ensure service implements interface.
var _ ctfbot.EventService = (*EventService)(nil)

// EventService represents a service for managing CTF events.
type EventService struct {
	db *DB
}

// NewEventService returns a new instance of EventService.
func NewEventService(db *DB) *EventService {
	return &EventService{db: db}
}

// FindEvent retrieves the active event with the given name in a guild.
// Returns ENOTFOUND if it does not exist.
func (s *EventService) FindEvent(ctx context.Context, guildID snowflake.ID, name string) (*ctfbot.CTFEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	return findActiveEvent(ctx, tx, guildID, name)
}

// FindEventByAnnouncement retrieves the active event announced by messageID.
func (s *EventService) FindEventByAnnouncement(ctx context.Context, guildID, messageID snowflake.ID) (*ctfbot.CTFEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	events, _, err := findEvents(ctx, tx, eventQuery{
		filter:                ctfbot.EventFilter{GuildID: &guildID, IsActive: ptr(true), Limit: 1},
		announcementMessageID: &messageID,
	})
	if err != nil {
		return nil, err
	} else if len(events) == 0 {
		return nil, ctfbot.Errorf(ctfbot.ENOTFOUND, "CTF not found.")
	}
	return events[0], nil
}

// FindEvents retrieves a list of events by filter.
func (s *EventService) FindEvents(ctx context.Context, filter ctfbot.EventFilter) ([]*ctfbot.CTFEvent, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	return findEvents(ctx, tx, eventQuery{filter: filter})
}

// FindExpiredEvents returns every active event whose end time is at or
// before now. Events without an end time never expire.
func (s *EventService) FindExpiredEvents(ctx context.Context, now time.Time) ([]*ctfbot.CTFEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	events, _, err := findEvents(ctx, tx, eventQuery{
		filter:    ctfbot.EventFilter{IsActive: ptr(true)},
		endBefore: &now,
	})
	return events, err
}

// CreateEvent creates a new active event.
func (s *EventService) CreateEvent(ctx context.Context, event *ctfbot.CTFEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Create event.
	if err := createEvent(ctx, tx, event); err != nil {
		return err
	}
	return FormatError(tx.Commit())
}

// UpdateEvent merges the set fields of upd into the active event.
func (s *EventService) UpdateEvent(ctx context.Context, guildID snowflake.ID, name string, upd ctfbot.EventUpdate) (*ctfbot.CTFEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Update the event object.
	event, err := updateEvent(ctx, tx, guildID, name, upd)
	if err != nil {
		return event, err
	}
	return event, FormatError(tx.Commit())
}

// DeactivateEvent marks the active event as inactive.
func (s *EventService) DeactivateEvent(ctx context.Context, guildID snowflake.ID, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deactivateEvent(ctx, tx, guildID, name); err != nil {
		return err
	}
	return FormatError(tx.Commit())
}

// DeleteEvent permanently deletes every row for name in the guild.
func (s *EventService) DeleteEvent(ctx context.Context, guildID snowflake.ID, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteEvent(ctx, tx, guildID, name); err != nil {
		return err
	}
	return FormatError(tx.Commit())
}

func findActiveEvent(ctx context.Context, tx *Tx, guildID snowflake.ID, name string) (*ctfbot.CTFEvent, error) {
	events, _, err := findEvents(ctx, tx, eventQuery{
		filter: ctfbot.EventFilter{GuildID: &guildID, Name: &name, IsActive: ptr(true), Limit: 1},
	})
	if err != nil {
		return nil, err
	} else if len(events) == 0 {
		return nil, ctfbot.Errorf(ctfbot.ENOTFOUND, "CTF %q not found.", name)
	}
	return events[0], nil
}

// eventQuery extends the public filter with lookups only the store needs.
type eventQuery struct {
	filter                ctfbot.EventFilter
	announcementMessageID *snowflake.ID
	endBefore             *time.Time
}

func findEvents(ctx context.Context, tx *Tx, q eventQuery) (_ []*ctfbot.CTFEvent, n int, err error) {
	// Build WHERE clause. Each part of the WHERE clause is AND-ed together.
	// Values are appended to an arg list to avoid SQL injection.
	filter := q.filter
	where, args := []string{"1 = 1"}, []interface{}{}
	if v := filter.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}

	if v := filter.GuildID; v != nil {
		where, args = append(where, "guild_id = ?"), append(args, int64(*v))
	}

	if v := filter.Name; v != nil {
		where, args = append(where, "name = ?"), append(args, *v)
	}

	if v := filter.TextChannelID; v != nil {
		where, args = append(where, "text_channel_id = ?"), append(args, int64(*v))
	}

	if v := filter.IsActive; v != nil {
		where, args = append(where, "is_active = ?"), append(args, *v)
	}

	if v := q.announcementMessageID; v != nil {
		where, args = append(where, "announcement_message_id = ?"), append(args, int64(*v))
	}

	if v := q.endBefore; v != nil {
		where, args = append(where, "end_time IS NOT NULL AND end_time <= ?"), append(args, (*NullTime)(v))
	}

	// Execute query with limiting WHERE clause and LIMIT/OFFSET injected.
	rows, err := tx.QueryContext(ctx, `
		SELECT
			id,
			name,
			guild_id,
			role_id,
			text_channel_id,
			voice_channel_id,
			announcement_message_id,
			end_time,
			is_active,
			created_at,
			updated_at,
			COUNT(*) OVER()
		FROM ctf_events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY id ASC
		`+FormatLimitOffset(filter.Limit, filter.Offset),
		args...,
	)
	if err != nil {
		return nil, n, FormatError(err)
	}
	defer rows.Close()

	// Iterate over rows and deserialize into event objects.
	events := make([]*ctfbot.CTFEvent, 0)
	for rows.Next() {
		var event ctfbot.CTFEvent
		if err := rows.Scan(
			&event.ID,
			&event.Name,
			(*NullID)(&event.GuildID),
			(*NullID)(&event.RoleID),
			(*NullID)(&event.TextChannelID),
			(*NullID)(&event.VoiceChannelID),
			(*NullID)(&event.AnnouncementMessageID),
			(*NullTime)(&event.EndTime),
			&event.IsActive,
			(*NullTime)(&event.CreatedAt),
			(*NullTime)(&event.UpdatedAt),
			&n,
		); err != nil {
			return nil, 0, FormatError(err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, FormatError(err)
	}

	return events, n, nil
}

// createEvent inserts a new active event.
func createEvent(ctx context.Context, tx *Tx, event *ctfbot.CTFEvent) error {
	// Set timestamps to current time.
	event.CreatedAt = tx.now
	event.UpdatedAt = event.CreatedAt
	event.IsActive = true

	// Perform basic field validation.
	if err := event.Validate(); err != nil {
		return err
	}

	// The partial unique index backs this up, but checking first gives a
	// proper message instead of a constraint error.
	if _, err := findActiveEvent(ctx, tx, event.GuildID, event.Name); err == nil {
		return ctfbot.Errorf(ctfbot.ECONFLICT, "CTF %q already exists.", event.Name)
	} else if ctfbot.ErrorCode(err) != ctfbot.ENOTFOUND {
		return err
	}

	// Insert row into database.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO ctf_events (
			name,
			guild_id,
			role_id,
			text_channel_id,
			voice_channel_id,
			announcement_message_id,
			end_time,
			is_active,
			created_at,
			updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		event.Name,
		(*NullID)(&event.GuildID),
		(*NullID)(&event.RoleID),
		(*NullID)(&event.TextChannelID),
		(*NullID)(&event.VoiceChannelID),
		(*NullID)(&event.AnnouncementMessageID),
		(*NullTime)(&event.EndTime),
		(*NullTime)(&event.CreatedAt),
		(*NullTime)(&event.UpdatedAt),
	)
	if err != nil {
		return FormatError(err)
	}

	// Read back new event ID into caller argument.
	id, err := result.LastInsertId()
	if err != nil {
		return FormatError(err)
	}
	event.ID = int(id)

	return nil
}

// updateEvent updates the active event by name. Returns the new state of the
// event after update.
func updateEvent(ctx context.Context, tx *Tx, guildID snowflake.ID, name string, upd ctfbot.EventUpdate) (*ctfbot.CTFEvent, error) {
	// Fetch current object state.
	event, err := findActiveEvent(ctx, tx, guildID, name)
	if err != nil {
		return event, err
	}

	// Update fields, if set.
	if v := upd.RoleID; v != nil {
		event.RoleID = *v
	}

	if v := upd.TextChannelID; v != nil {
		event.TextChannelID = *v
	}

	if v := upd.VoiceChannelID; v != nil {
		event.VoiceChannelID = *v
	}

	if v := upd.AnnouncementMessageID; v != nil {
		event.AnnouncementMessageID = *v
	}

	if v := upd.EndTime; v != nil {
		event.EndTime = v.UTC().Truncate(time.Second)
	}

	event.UpdatedAt = tx.now

	// Execute update query.
	if _, err := tx.ExecContext(ctx, `
		UPDATE ctf_events
		SET role_id = ?,
			text_channel_id = ?,
			voice_channel_id = ?,
			announcement_message_id = ?,
			end_time = ?,
			updated_at = ?
		WHERE id = ?
	`,
		(*NullID)(&event.RoleID),
		(*NullID)(&event.TextChannelID),
		(*NullID)(&event.VoiceChannelID),
		(*NullID)(&event.AnnouncementMessageID),
		(*NullTime)(&event.EndTime),
		(*NullTime)(&event.UpdatedAt),
		event.ID,
	); err != nil {
		return event, FormatError(err)
	}

	return event, nil
}

// deactivateEvent flips the active row for name to inactive.
func deactivateEvent(ctx context.Context, tx *Tx, guildID snowflake.ID, name string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE ctf_events
		SET is_active = 0,
			updated_at = ?
		WHERE guild_id = ? AND name = ? AND is_active = 1
	`,
		(*NullTime)(&tx.now),
		int64(guildID),
		name,
	)
	if err != nil {
		return FormatError(err)
	}

	if n, err := result.RowsAffected(); err != nil {
		return FormatError(err)
	} else if n == 0 {
		return ctfbot.Errorf(ctfbot.ENOTFOUND, "CTF %q not found.", name)
	}
	return nil
}

// deleteEvent permanently deletes every row for name in the guild.
func deleteEvent(ctx context.Context, tx *Tx, guildID snowflake.ID, name string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM ctf_events WHERE guild_id = ? AND name = ?`, int64(guildID), name)
	if err != nil {
		return FormatError(err)
	}

	if n, err := result.RowsAffected(); err != nil {
		return FormatError(err)
	} else if n == 0 {
		return ctfbot.Errorf(ctfbot.ENOTFOUND, "CTF %q not found.", name)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
