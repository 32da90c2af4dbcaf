package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
	"github.com/flagbearer/ctfbot/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGuild   = snowflake.ID(1)
	testChannel = snowflake.ID(10)
	testUser    = snowflake.ID(77)
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testManager struct {
	*Manager
	events  *sqlite.EventService
	gateway *fakeGateway
}

// newTestManager returns a manager over a fresh database and fake gateway.
func newTestManager(tb testing.TB) *testManager {
	tb.Helper()

	db := sqlite.NewDB(filepath.Join(tb.TempDir(), "db"))
	db.Now = func() time.Time { return testNow }
	if err := db.Open(); err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	events := sqlite.NewEventService(db)
	gateway := newFakeGateway()

	m := NewManager(events, gateway)
	m.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	m.Metrics = NewMetrics(prometheus.NewRegistry())
	m.Now = func() time.Time { return testNow }

	return &testManager{Manager: m, events: events, gateway: gateway}
}

// mustAnnounce announces name in the test guild. Fatal on error.
func (m *testManager) mustAnnounce(tb testing.TB, name string) *ctfbot.CTFEvent {
	tb.Helper()
	event, err := m.Announce(context.Background(), testGuild, testChannel, name)
	if err != nil {
		tb.Fatal(err)
	}
	return event
}

func (m *testManager) mustSetEndTime(tb testing.TB, name, raw string) {
	tb.Helper()
	if _, err := m.SetEndTime(context.Background(), testGuild, name, raw); err != nil {
		tb.Fatal(err)
	}
}

func TestManager_Announce(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()

		event, err := m.Announce(ctx, testGuild, testChannel, "DEFCON")
		require.NoError(t, err)

		got, err := m.events.FindEvent(ctx, testGuild, "DEFCON")
		require.NoError(t, err)
		assert.Equal(t, event.ID, got.ID)
		assert.True(t, got.IsActive)
		assert.NotZero(t, got.RoleID)
		assert.NotZero(t, got.TextChannelID)
		assert.NotZero(t, got.VoiceChannelID)
		assert.NotZero(t, got.AnnouncementMessageID)
		assert.True(t, got.EndTime.IsZero())

		// Announcement went to the invoking channel with the marker on it.
		require.Len(t, m.gateway.messages[testChannel], 1)
		assert.Contains(t, m.gateway.messages[testChannel][0].Title, "DEFCON")
		assert.Equal(t, ctfbot.DefaultMarkerEmoji, m.gateway.reactions[got.AnnouncementMessageID])
		assert.Equal(t, "DEFCON", m.gateway.roles[got.RoleID])

		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.announcedTotal))
	})

	t.Run("ErrAlreadyExists", func(t *testing.T) {
		m := newTestManager(t)
		m.mustAnnounce(t, "DEFCON")
		calls := len(m.gateway.calls)

		_, err := m.Announce(context.Background(), testGuild, testChannel, "DEFCON")
		assert.Equal(t, ctfbot.ECONFLICT, ctfbot.ErrorCode(err))

		// No new gateway objects.
		assert.Len(t, m.gateway.calls, calls)
		assert.Len(t, m.gateway.roles, 1)
	})

	t.Run("SameNameOtherGuild", func(t *testing.T) {
		m := newTestManager(t)
		m.mustAnnounce(t, "DEFCON")

		_, err := m.Announce(context.Background(), 2, testChannel, "DEFCON")
		require.NoError(t, err)
	})

	t.Run("ErrInvalidName", func(t *testing.T) {
		m := newTestManager(t)

		_, err := m.Announce(context.Background(), testGuild, testChannel, "DEF CON!")
		assert.Equal(t, ctfbot.EINVALIDNAME, ctfbot.ErrorCode(err))
		assert.Empty(t, m.gateway.calls)
	})

	t.Run("ErrPermissionDenied", func(t *testing.T) {
		m := newTestManager(t)
		m.gateway.errs["CreateRole"] = ctfbot.Errorf(ctfbot.EFORBIDDEN, "Missing Permissions")

		_, err := m.Announce(context.Background(), testGuild, testChannel, "DEFCON")
		assert.Equal(t, ctfbot.EFORBIDDEN, ctfbot.ErrorCode(err))

		_, err = m.events.FindEvent(context.Background(), testGuild, "DEFCON")
		assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))
	})

	t.Run("ErrGateway", func(t *testing.T) {
		m := newTestManager(t)
		m.gateway.errs["CreateVoiceChannel"] = errors.New("connection reset")

		_, err := m.Announce(context.Background(), testGuild, testChannel, "DEFCON")
		assert.Equal(t, ctfbot.EGATEWAY, ctfbot.ErrorCode(err))

		// Partially created objects are left for manual cleanup.
		assert.Len(t, m.gateway.roles, 1)
		assert.Len(t, m.gateway.channels, 1)

		_, err = m.events.FindEvent(context.Background(), testGuild, "DEFCON")
		assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))
	})
}

func TestManager_SetEndTime(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()
		m.mustAnnounce(t, "DEFCON")

		event, err := m.SetEndTime(ctx, testGuild, "DEFCON", "2024-01-01 00:00:00")
		require.NoError(t, err)
		assert.True(t, event.EndTime.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

		// A bad value is rejected and the stored one survives.
		_, err = m.SetEndTime(ctx, testGuild, "DEFCON", "not-a-date")
		assert.Equal(t, ctfbot.EINVALIDTIME, ctfbot.ErrorCode(err))

		got, err := m.events.FindEvent(ctx, testGuild, "DEFCON")
		require.NoError(t, err)
		assert.True(t, got.EndTime.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		m := newTestManager(t)
		m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-12-31T23:59:59")

		got, err := m.events.FindEvent(context.Background(), testGuild, "DEFCON")
		require.NoError(t, err)
		want, _ := time.Parse(time.RFC3339, "2024-12-31T23:59:59Z")
		assert.True(t, got.EndTime.Equal(want))
	})

	t.Run("ErrNotFound", func(t *testing.T) {
		m := newTestManager(t)

		_, err := m.SetEndTime(context.Background(), testGuild, "DEFCON", "2024-01-01 00:00:00")
		assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))
	})
}

func TestManager_HandleReactionAdd(t *testing.T) {
	reaction := func(event *ctfbot.CTFEvent) ctfbot.Reaction {
		return ctfbot.Reaction{
			GuildID:   testGuild,
			ChannelID: testChannel,
			MessageID: event.AnnouncementMessageID,
			UserID:    testUser,
			Emoji:     ctfbot.DefaultMarkerEmoji,
		}
	}

	t.Run("OK", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")

		require.NoError(t, m.HandleReactionAdd(context.Background(), reaction(event)))
		assert.True(t, m.gateway.members[event.RoleID][testUser])
		assert.Len(t, m.gateway.dms[testUser], 1)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.joinsTotal))
	})

	t.Run("DirectMessageRefused", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")
		m.gateway.errs["SendDirectMessage"] = ctfbot.Errorf(ctfbot.EFORBIDDEN, "Cannot send messages to this user")

		require.NoError(t, m.HandleReactionAdd(context.Background(), reaction(event)))
		assert.True(t, m.gateway.members[event.RoleID][testUser])
	})

	t.Run("UnknownMessage", func(t *testing.T) {
		m := newTestManager(t)
		m.mustAnnounce(t, "DEFCON")

		r := ctfbot.Reaction{GuildID: testGuild, MessageID: 999999, UserID: testUser, Emoji: ctfbot.DefaultMarkerEmoji}
		require.NoError(t, m.HandleReactionAdd(context.Background(), r))
		assert.Zero(t, m.gateway.count("AddMemberRole"))
	})

	t.Run("OtherEmoji", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")

		r := reaction(event)
		r.Emoji = "👍"
		require.NoError(t, m.HandleReactionAdd(context.Background(), r))
		assert.Zero(t, m.gateway.count("AddMemberRole"))
	})

	t.Run("BotIgnored", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")

		r := reaction(event)
		r.Bot = true
		require.NoError(t, m.HandleReactionAdd(context.Background(), r))
		assert.Zero(t, m.gateway.count("AddMemberRole"))
	})

	t.Run("EndedEventIgnored", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")
		require.NoError(t, m.End(context.Background(), testGuild, "DEFCON"))

		require.NoError(t, m.HandleReactionAdd(context.Background(), reaction(event)))
		assert.Zero(t, m.gateway.count("AddMemberRole"))
	})

	t.Run("ErrGrant", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")
		m.gateway.errs["AddMemberRole"] = ctfbot.Errorf(ctfbot.EFORBIDDEN, "Missing Permissions")

		err := m.HandleReactionAdd(context.Background(), reaction(event))
		assert.Equal(t, ctfbot.EFORBIDDEN, ctfbot.ErrorCode(err))
		assert.Zero(t, m.gateway.count("SendDirectMessage"))
	})
}

func TestManager_HandleReactionRemove(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()
		event := m.mustAnnounce(t, "DEFCON")

		r := ctfbot.Reaction{GuildID: testGuild, MessageID: event.AnnouncementMessageID, UserID: testUser, Emoji: ctfbot.DefaultMarkerEmoji}
		require.NoError(t, m.HandleReactionAdd(ctx, r))
		require.NoError(t, m.HandleReactionRemove(ctx, r))

		assert.False(t, m.gateway.members[event.RoleID][testUser])
		assert.Len(t, m.gateway.dms[testUser], 1, "leaving sends no message")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.leavesTotal))
	})

	t.Run("BotIgnored", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")

		r := ctfbot.Reaction{GuildID: testGuild, MessageID: event.AnnouncementMessageID, UserID: testUser, Emoji: ctfbot.DefaultMarkerEmoji, Bot: true}
		require.NoError(t, m.HandleReactionRemove(context.Background(), r))
		assert.Zero(t, m.gateway.count("RemoveMemberRole"))
	})

	t.Run("UnknownMessage", func(t *testing.T) {
		m := newTestManager(t)

		r := ctfbot.Reaction{GuildID: testGuild, MessageID: 5, UserID: testUser, Emoji: ctfbot.DefaultMarkerEmoji}
		require.NoError(t, m.HandleReactionRemove(context.Background(), r))
		assert.Zero(t, m.gateway.count("RemoveMemberRole"))
	})
}

func TestManager_Sweep(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()
		event := m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")

		require.NoError(t, m.Sweep(ctx))

		assert.NotContains(t, m.gateway.roles, event.RoleID)
		assert.NotContains(t, m.gateway.channels, event.VoiceChannelID)
		assert.Contains(t, m.gateway.channels, event.TextChannelID)
		assert.True(t, m.gateway.public[event.TextChannelID])

		// An archive category was created and the text channel moved there.
		archive := m.gateway.parents[event.TextChannelID]
		assert.Equal(t, "Archive", m.gateway.categories[archive])

		// The closing notice landed in the archived channel.
		require.Len(t, m.gateway.messages[event.TextChannelID], 1)
		assert.Contains(t, m.gateway.messages[event.TextChannelID][0].Title, "DEFCON")

		_, err := m.events.FindEvent(ctx, testGuild, "DEFCON")
		assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))

		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.endedTotal))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.sweepsTotal))
	})

	t.Run("StepOrder", func(t *testing.T) {
		m := newTestManager(t)
		m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")
		m.gateway.calls = nil

		require.NoError(t, m.Sweep(context.Background()))
		assert.Equal(t, []string{
			"GuildAvailable",
			"DeleteRole",
			"PublishChannel",
			"FindCategory",
			"CreateCategory",
			"MoveChannel",
			"DeleteChannel",
			"SendMessage",
		}, m.gateway.calls)
	})

	t.Run("Idempotent", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()
		m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")

		require.NoError(t, m.Sweep(ctx))
		calls := len(m.gateway.calls)

		require.NoError(t, m.Sweep(ctx))
		assert.Len(t, m.gateway.calls, calls)

		events, _, err := m.events.FindEvents(ctx, ctfbot.EventFilter{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.False(t, events[0].IsActive)
	})

	t.Run("ExpirySelection", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()
		m.mustAnnounce(t, "past")
		m.mustAnnounce(t, "future")
		m.mustAnnounce(t, "open")
		m.mustSetEndTime(t, "past", testNow.Add(-time.Hour).Format("2006-01-02T15:04:05"))
		m.mustSetEndTime(t, "future", testNow.Add(time.Hour).Format("2006-01-02T15:04:05"))

		require.NoError(t, m.Sweep(ctx))

		active, err := m.List(ctx, testGuild)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "future", active[0].Name)
		assert.Equal(t, "open", active[1].Name)
	})

	t.Run("ExistingArchiveCategory", func(t *testing.T) {
		m := newTestManager(t)
		m.gateway.categories[5] = "ARCHIVED"
		event := m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")

		require.NoError(t, m.Sweep(context.Background()))
		assert.Equal(t, snowflake.ID(5), m.gateway.parents[event.TextChannelID])
		assert.Zero(t, m.gateway.count("CreateCategory"))
	})

	t.Run("ArchiveCategoryRefused", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")
		m.gateway.errs["CreateCategory"] = ctfbot.Errorf(ctfbot.EFORBIDDEN, "Missing Permissions")

		require.NoError(t, m.Sweep(context.Background()))

		// Channel is public but stays where it was.
		assert.True(t, m.gateway.public[event.TextChannelID])
		assert.NotContains(t, m.gateway.parents, event.TextChannelID)
		assert.Zero(t, m.gateway.count("MoveChannel"))
	})

	t.Run("FailedStepDoesNotAbort", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()
		event := m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")
		m.gateway.errs["DeleteRole"] = ctfbot.Errorf(ctfbot.EFORBIDDEN, "Missing Permissions")
		m.gateway.errs["PublishChannel"] = errors.New("boom")

		require.NoError(t, m.Sweep(ctx))

		assert.NotContains(t, m.gateway.channels, event.VoiceChannelID)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.stepFailures.WithLabelValues("delete_role")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.stepFailures.WithLabelValues("archive_text_channel")))

		_, err := m.events.FindEvent(ctx, testGuild, "DEFCON")
		assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))
	})

	t.Run("ObjectsAlreadyGone", func(t *testing.T) {
		m := newTestManager(t)
		event := m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")

		// Someone removed everything by hand before the event ended.
		delete(m.gateway.roles, event.RoleID)
		delete(m.gateway.channels, event.TextChannelID)
		delete(m.gateway.channels, event.VoiceChannelID)

		require.NoError(t, m.Sweep(context.Background()))

		assert.Empty(t, m.gateway.messages[event.TextChannelID], "no notice to a missing channel")
		assert.Equal(t, 0.0, testutil.ToFloat64(m.Metrics.stepFailures.WithLabelValues("delete_role")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.endedTotal))
	})

	t.Run("ClosingNoticeFailureDropped", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()
		m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")
		m.gateway.errs["SendMessage"] = errors.New("boom")

		require.NoError(t, m.Sweep(ctx))

		_, err := m.events.FindEvent(ctx, testGuild, "DEFCON")
		assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))
	})

	t.Run("GuildGone", func(t *testing.T) {
		m := newTestManager(t)
		ctx := context.Background()
		event := m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")
		m.gateway.goneGuilds[testGuild] = true
		m.gateway.calls = nil

		require.NoError(t, m.Sweep(ctx))
		assert.Equal(t, []string{"GuildAvailable"}, m.gateway.calls)
		assert.Contains(t, m.gateway.roles, event.RoleID)

		_, err := m.events.FindEvent(ctx, testGuild, "DEFCON")
		assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))
	})

	t.Run("Cancelled", func(t *testing.T) {
		m := newTestManager(t)
		m.mustAnnounce(t, "DEFCON")
		m.mustSetEndTime(t, "DEFCON", "2024-01-01 00:00:00")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, m.Sweep(ctx))

		// Nothing was deactivated, the next sweep picks it up.
		_, err := m.events.FindEvent(context.Background(), testGuild, "DEFCON")
		require.NoError(t, err)
		require.NoError(t, m.Sweep(context.Background()))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Metrics.endedTotal))
	})
}

func TestManager_teardown_AlreadyDeactivated(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	event := m.mustAnnounce(t, "DEFCON")

	// Another sweep got there first.
	require.NoError(t, m.events.DeactivateEvent(ctx, testGuild, "DEFCON"))
	assert.NoError(t, m.teardown(ctx, m.Logger, event))
}

func TestManager_End(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	event := m.mustAnnounce(t, "DEFCON")

	require.NoError(t, m.End(ctx, testGuild, "DEFCON"))
	assert.NotContains(t, m.gateway.roles, event.RoleID)

	err := m.End(ctx, testGuild, "DEFCON")
	assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	m.mustAnnounce(t, "DEFCON")

	require.NoError(t, m.Delete(ctx, testGuild, "DEFCON"))
	_, n, err := m.events.FindEvents(ctx, ctfbot.EventFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	err = m.Delete(ctx, testGuild, "DEFCON")
	assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))
}

func TestNotify(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.True(t, Notify(context.Background(), logger, "ok", func(context.Context) error { return nil }))
	assert.False(t, Notify(context.Background(), logger, "refused", func(context.Context) error {
		return ctfbot.Errorf(ctfbot.EFORBIDDEN, "Cannot send messages to this user")
	}))
}
