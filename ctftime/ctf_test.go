package ctftime_test

import (
	"testing"
	"time"

	"github.com/flagbearer/ctfbot/ctftime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_Length(t *testing.T) {
	start := time.Date(2024, 11, 23, 4, 0, 0, 0, time.UTC)

	t.Run("FromBounds", func(t *testing.T) {
		ev := &ctftime.Event{Start: start, Finish: start.Add(24 * time.Hour), Duration: ctftime.Duration{Hours: 12}}
		assert.Equal(t, 24*time.Hour, ev.Length())
	})

	t.Run("FallbackToDuration", func(t *testing.T) {
		ev := &ctftime.Event{Start: start, Duration: ctftime.Duration{Days: 1, Hours: 12}}
		assert.Equal(t, 36*time.Hour, ev.Length())
	})
}

func TestEvent_OrganizerNames(t *testing.T) {
	ev := &ctftime.Event{Organizers: []ctftime.Team{{Name: "SECCON"}, {Name: "TSG"}}}
	assert.Equal(t, "SECCON, TSG", ev.OrganizerNames())
	assert.Empty(t, (&ctftime.Event{}).OrganizerNames())
}

func TestUpcoming(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	filter := ctftime.Upcoming(now, 2, 20)
	require.NotNil(t, filter.Start)
	require.NotNil(t, filter.Finish)
	assert.Equal(t, now, *filter.Start)
	assert.Equal(t, now.AddDate(0, 0, 14), *filter.Finish)
	assert.Equal(t, 20, filter.Limit)
}
