package sqlite_test

import (
	"context"
	"testing"

	"github.com/flagbearer/ctfbot"
	"github.com/flagbearer/ctfbot/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackedUserService(t *testing.T) {
	db := MustOpenDB(t)
	defer MustCloseDB(t, db)
	s := sqlite.NewTrackedUserService(db)
	ctx := context.Background()

	users, err := s.FindTrackedUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	require.NoError(t, s.CreateTrackedUser(ctx, &ctfbot.TrackedUser{Name: "alice"}))
	require.NoError(t, s.CreateTrackedUser(ctx, &ctfbot.TrackedUser{Name: "bob"}))

	err = s.CreateTrackedUser(ctx, &ctfbot.TrackedUser{Name: "alice"})
	assert.Equal(t, ctfbot.ECONFLICT, ctfbot.ErrorCode(err))

	err = s.CreateTrackedUser(ctx, &ctfbot.TrackedUser{})
	assert.Equal(t, ctfbot.EINVALID, ctfbot.ErrorCode(err))

	users, err = s.FindTrackedUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Name)
	assert.Equal(t, "bob", users[1].Name)
	assert.True(t, users[0].CreatedAt.Equal(testNow))

	require.NoError(t, s.DeleteTrackedUser(ctx, "alice"))
	err = s.DeleteTrackedUser(ctx, "alice")
	assert.Equal(t, ctfbot.ENOTFOUND, ctfbot.ErrorCode(err))

	users, err = s.FindTrackedUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Name)
}
