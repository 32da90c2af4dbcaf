// Package lifecycle drives a CTF event from announcement to archive: it
// creates the role and channels, toggles membership from reactions on the
// announcement and tears everything down once the end time has passed.
//
// The manager keeps no state of its own. Every call re-reads the event from
// the EventService, which stays the single source of truth.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
	"github.com/google/uuid"
)

// Config holds the lifecycle settings read from the configuration file.
type Config struct {
	// Reaction used to join or leave an event.
	MarkerEmoji string

	// Name of the category created when no archive category exists.
	ArchiveCategory string

	// Other category names accepted as the archive, matched case-insensitively.
	ArchiveCategoryAliases []string
}

// DefaultConfig returns a new instance of Config with defaults set.
func DefaultConfig() Config {
	return Config{
		MarkerEmoji:            ctfbot.DefaultMarkerEmoji,
		ArchiveCategory:        "Archive",
		ArchiveCategoryAliases: []string{"archive", "archived", "アーカイブ"},
	}
}

// archiveNames returns every accepted archive category name.
func (c Config) archiveNames() []string {
	return append([]string{c.ArchiveCategory}, c.ArchiveCategoryAliases...)
}

// Manager orchestrates CTF events on top of an EventService and a Gateway.
type Manager struct {
	events  ctfbot.EventService
	gateway ctfbot.Gateway

	Config  Config
	Logger  *slog.Logger
	Metrics *Metrics

	// Returns the current time. Defaults to time.Now().
	// Can be mocked for tests.
	Now func() time.Time
}

// NewManager returns a new instance of Manager with the default config.
func NewManager(events ctfbot.EventService, gateway ctfbot.Gateway) *Manager {
	return &Manager{
		events:  events,
		gateway: gateway,
		Config:  DefaultConfig(),
		Logger:  slog.Default(),
		Now:     time.Now,
	}
}

// Announce creates the role, the text and voice channels and the
// announcement message for a new event, then stores it.
//
// Gateway objects created before a failure are not rolled back; the error
// is logged with whatever was created so an admin can clean up by hand.
func (m *Manager) Announce(ctx context.Context, guildID, channelID snowflake.ID, name string) (*ctfbot.CTFEvent, error) {
	if err := ctfbot.ValidateEventName(name); err != nil {
		return nil, err
	}

	if _, err := m.events.FindEvent(ctx, guildID, name); err == nil {
		return nil, ctfbot.Errorf(ctfbot.ECONFLICT, "CTF %q already exists.", name)
	} else if ctfbot.ErrorCode(err) != ctfbot.ENOTFOUND {
		return nil, err
	}

	event := &ctfbot.CTFEvent{Name: name, GuildID: guildID}
	logger := m.Logger.With(slog.String("ctf", name), slog.String("guild", guildID.String()))

	var err error
	if event.RoleID, err = m.gateway.CreateRole(ctx, guildID, name); err != nil {
		return nil, m.announceError(logger, event, "create role", err)
	}

	if event.TextChannelID, err = m.gateway.CreateTextChannel(ctx, guildID, name, event.RoleID); err != nil {
		return nil, m.announceError(logger, event, "create text channel", err)
	}

	if event.VoiceChannelID, err = m.gateway.CreateVoiceChannel(ctx, guildID, name, event.RoleID); err != nil {
		return nil, m.announceError(logger, event, "create voice channel", err)
	}

	if event.AnnouncementMessageID, err = m.gateway.SendMessage(ctx, channelID, m.announcement(event)); err != nil {
		return nil, m.announceError(logger, event, "post announcement", err)
	}

	if err := m.gateway.AddReaction(ctx, channelID, event.AnnouncementMessageID, m.Config.MarkerEmoji); err != nil {
		return nil, m.announceError(logger, event, "add marker reaction", err)
	}

	if err := m.events.CreateEvent(ctx, event); err != nil {
		logger.Error("cannot store announced ctf",
			slog.String("role", event.RoleID.String()),
			slog.String("text_channel", event.TextChannelID.String()),
			slog.String("voice_channel", event.VoiceChannelID.String()),
			slog.Any("err", err))
		return nil, err
	}

	m.Metrics.announced()
	logger.Info("ctf announced", slog.Int("id", event.ID))

	return event, nil
}

// announceError normalizes a gateway failure to EFORBIDDEN or EGATEWAY and
// logs the objects left behind.
func (m *Manager) announceError(logger *slog.Logger, event *ctfbot.CTFEvent, action string, err error) error {
	logger.Error("announce failed",
		slog.String("action", action),
		slog.String("role", event.RoleID.String()),
		slog.String("text_channel", event.TextChannelID.String()),
		slog.String("voice_channel", event.VoiceChannelID.String()),
		slog.Any("err", err))

	if ctfbot.ErrorCode(err) == ctfbot.EFORBIDDEN {
		return ctfbot.WrapError(err, ctfbot.EFORBIDDEN, "I am not allowed to %s.", action)
	}
	return ctfbot.WrapError(err, ctfbot.EGATEWAY, "Failed to %s.", action)
}

func (m *Manager) announcement(event *ctfbot.CTFEvent) *ctfbot.Message {
	return &ctfbot.Message{
		Title: fmt.Sprintf("%s CTF: %s", m.Config.MarkerEmoji, event.Name),
		Description: fmt.Sprintf("CTF `%s` has started!\n\nReact with %s below to join. "+
			"Joining grants <@&%s> and access to the event channels.",
			event.Name, m.Config.MarkerEmoji, event.RoleID),
		Color: 0x57F287,
		Fields: []ctfbot.MessageField{
			{Name: "Text channel", Value: fmt.Sprintf("<#%s>", event.TextChannelID), Inline: true},
			{Name: "Voice channel", Value: fmt.Sprintf("<#%s>", event.VoiceChannelID), Inline: true},
		},
	}
}

// SetEndTime parses raw and stores it as the end time of an active event.
// An unparsable value leaves the stored end time untouched.
func (m *Manager) SetEndTime(ctx context.Context, guildID snowflake.ID, name, raw string) (*ctfbot.CTFEvent, error) {
	if _, err := m.events.FindEvent(ctx, guildID, name); err != nil {
		return nil, err
	}

	end, err := ctfbot.ParseEndTime(raw)
	if err != nil {
		return nil, err
	}

	event, err := m.events.UpdateEvent(ctx, guildID, name, ctfbot.EventUpdate{EndTime: &end})
	if err != nil {
		return nil, err
	}

	m.Logger.Info("ctf end time set",
		slog.String("ctf", name),
		slog.String("guild", guildID.String()),
		slog.Time("end_time", event.EndTime))

	return event, nil
}

// List returns the active events of a guild.
func (m *Manager) List(ctx context.Context, guildID snowflake.ID) ([]*ctfbot.CTFEvent, error) {
	active := true
	events, _, err := m.events.FindEvents(ctx, ctfbot.EventFilter{GuildID: &guildID, IsActive: &active})
	return events, err
}

// HandleReactionAdd grants the event role to whoever added the marker
// reaction to an announcement. Reactions on anything else are ignored.
func (m *Manager) HandleReactionAdd(ctx context.Context, r ctfbot.Reaction) error {
	event, err := m.resolveReaction(ctx, r)
	if event == nil || err != nil {
		return err
	}

	if err := m.gateway.AddMemberRole(ctx, r.GuildID, r.UserID, event.RoleID); err != nil {
		return fmt.Errorf("grant role for %q: %w", event.Name, err)
	}
	m.Metrics.joined()

	logger := m.Logger.With(slog.String("ctf", event.Name), slog.String("user", r.UserID.String()))
	logger.Info("joined ctf")

	Notify(ctx, logger, "join confirmation", func(ctx context.Context) error {
		return m.gateway.SendDirectMessage(ctx, r.UserID,
			fmt.Sprintf("%s You joined CTF `%s`! The event channels are now visible to you.", m.Config.MarkerEmoji, event.Name))
	})

	return nil
}

// HandleReactionRemove revokes the event role when the marker reaction is
// taken back.
func (m *Manager) HandleReactionRemove(ctx context.Context, r ctfbot.Reaction) error {
	event, err := m.resolveReaction(ctx, r)
	if event == nil || err != nil {
		return err
	}

	if err := m.gateway.RemoveMemberRole(ctx, r.GuildID, r.UserID, event.RoleID); err != nil {
		return fmt.Errorf("revoke role for %q: %w", event.Name, err)
	}
	m.Metrics.left()

	m.Logger.Info("left ctf", slog.String("ctf", event.Name), slog.String("user", r.UserID.String()))

	return nil
}

// resolveReaction returns the event a reaction toggles, or nil when the
// reaction is not ours to handle. Bot reactions are ignored both ways, which
// also covers the marker the bot itself adds on announce.
func (m *Manager) resolveReaction(ctx context.Context, r ctfbot.Reaction) (*ctfbot.CTFEvent, error) {
	if r.Bot || r.Emoji != m.Config.MarkerEmoji {
		return nil, nil
	}

	event, err := m.events.FindEventByAnnouncement(ctx, r.GuildID, r.MessageID)
	if ctfbot.ErrorCode(err) == ctfbot.ENOTFOUND {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	if event.RoleID == 0 {
		return nil, nil
	}
	return event, nil
}

// Sweep tears down every event whose end time has passed.
//
// Teardown is best effort: a failed step is logged and skipped, and the
// event is always deactivated at the end so it is not picked up again. If
// ctx is cancelled the remaining events stay active and are retried on the
// next sweep.
func (m *Manager) Sweep(ctx context.Context) error {
	start := time.Now()
	logger := m.Logger.With(slog.String("sweep", uuid.NewString()))

	events, err := m.events.FindExpiredEvents(ctx, m.Now())
	if err != nil {
		return fmt.Errorf("find expired ctfs: %w", err)
	}

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.teardown(ctx, logger, event); err != nil {
			logger.Error("cannot deactivate ctf", slog.String("ctf", event.Name), slog.Any("err", err))
		}
	}

	m.Metrics.swept(len(events), time.Since(start))
	if len(events) > 0 {
		logger.Info("sweep finished", slog.Int("ended", len(events)), slog.Duration("took", time.Since(start)))
	}

	return nil
}

// End tears down an active event right away, regardless of its end time.
func (m *Manager) End(ctx context.Context, guildID snowflake.ID, name string) error {
	event, err := m.events.FindEvent(ctx, guildID, name)
	if err != nil {
		return err
	}
	return m.teardown(ctx, m.Logger, event)
}

// Delete permanently removes an event and its history. Discord objects are
// left as they are.
func (m *Manager) Delete(ctx context.Context, guildID snowflake.ID, name string) error {
	if err := m.events.DeleteEvent(ctx, guildID, name); err != nil {
		return err
	}

	m.Logger.Info("ctf deleted", slog.String("ctf", name), slog.String("guild", guildID.String()))
	return nil
}

// teardown runs the teardown steps of one event in order: role, text
// channel, voice channel, closing notice, deactivation. Only the
// deactivation error is returned.
func (m *Manager) teardown(ctx context.Context, logger *slog.Logger, event *ctfbot.CTFEvent) error {
	logger = logger.With(slog.String("ctf", event.Name), slog.String("guild", event.GuildID.String()))

	if !m.gateway.GuildAvailable(ctx, event.GuildID) {
		logger.Warn("guild not found, deactivating without teardown")
		return m.deactivate(ctx, logger, event)
	}

	if event.RoleID != 0 {
		m.step(logger, "delete_role", m.gateway.DeleteRole(ctx, event.GuildID, event.RoleID))
	}

	textAlive := event.TextChannelID != 0
	if textAlive {
		err := m.step(logger, "archive_text_channel", m.archive(ctx, logger, event))
		textAlive = ctfbot.ErrorCode(err) != ctfbot.ENOTFOUND
	}

	if event.VoiceChannelID != 0 {
		m.step(logger, "delete_voice_channel", m.gateway.DeleteChannel(ctx, event.VoiceChannelID))
	}

	if textAlive {
		Notify(ctx, logger, "closing notice", func(ctx context.Context) error {
			_, err := m.gateway.SendMessage(ctx, event.TextChannelID, m.closingNotice(event))
			return err
		})
	}

	return m.deactivate(ctx, logger, event)
}

// archive makes the text channel public and moves it under the archive
// category, creating one if needed. Failing to create the category leaves
// the channel public where it is.
func (m *Manager) archive(ctx context.Context, logger *slog.Logger, event *ctfbot.CTFEvent) error {
	if err := m.gateway.PublishChannel(ctx, event.GuildID, event.TextChannelID); err != nil {
		return err
	}

	categoryID, err := m.gateway.FindCategory(ctx, event.GuildID, m.Config.archiveNames())
	if ctfbot.ErrorCode(err) == ctfbot.ENOTFOUND {
		if categoryID, err = m.gateway.CreateCategory(ctx, event.GuildID, m.Config.ArchiveCategory); err != nil {
			logger.Warn("cannot create archive category", slog.Any("err", err))
			return nil
		}
	} else if err != nil {
		return err
	}

	return m.gateway.MoveChannel(ctx, event.TextChannelID, categoryID)
}

// step logs a failed teardown step and hands the error back. Objects that
// are already gone are not failures.
func (m *Manager) step(logger *slog.Logger, name string, err error) error {
	if err == nil {
		return nil
	}

	if ctfbot.ErrorCode(err) == ctfbot.ENOTFOUND {
		logger.Debug("teardown target already gone", slog.String("step", name))
		return err
	}

	m.Metrics.stepFailed(name)
	logger.Error("teardown step failed", slog.String("step", name), slog.Any("err", err))
	return err
}

// deactivate flips the event inactive. Another sweep getting there first is
// not an error.
func (m *Manager) deactivate(ctx context.Context, logger *slog.Logger, event *ctfbot.CTFEvent) error {
	if err := m.events.DeactivateEvent(ctx, event.GuildID, event.Name); ctfbot.ErrorCode(err) == ctfbot.ENOTFOUND {
		logger.Debug("ctf already deactivated")
		return nil
	} else if err != nil {
		return err
	}

	m.Metrics.ended()
	logger.Info("ctf ended")
	return nil
}

func (m *Manager) closingNotice(event *ctfbot.CTFEvent) *ctfbot.Message {
	return &ctfbot.Message{
		Title: fmt.Sprintf("🏁 CTF ended: %s", event.Name),
		Description: fmt.Sprintf("CTF `%s` is over.\n\n"+
			"- The role has been deleted\n"+
			"- This channel is now public and archived\n"+
			"- The voice channel has been deleted", event.Name),
		Color: 0xE67E22,
	}
}
