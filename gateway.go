package ctfbot

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// Gateway is the set of chat platform operations the CTF lifecycle needs.
//
// Implementations report a missing object with ENOTFOUND, a refused action
// with EFORBIDDEN and any other platform failure with EGATEWAY.
type Gateway interface {
	// GuildAvailable reports whether the bot can still reach the guild.
	GuildAvailable(ctx context.Context, guildID snowflake.ID) bool

	CreateRole(ctx context.Context, guildID snowflake.ID, name string) (snowflake.ID, error)
	DeleteRole(ctx context.Context, guildID, roleID snowflake.ID) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error

	// CreateTextChannel and CreateVoiceChannel create channels hidden from
	// everyone except holders of roleID.
	CreateTextChannel(ctx context.Context, guildID snowflake.ID, name string, roleID snowflake.ID) (snowflake.ID, error)
	CreateVoiceChannel(ctx context.Context, guildID snowflake.ID, name string, roleID snowflake.ID) (snowflake.ID, error)
	DeleteChannel(ctx context.Context, channelID snowflake.ID) error

	// PublishChannel clears the role-only restriction so every guild member
	// can read the channel.
	PublishChannel(ctx context.Context, guildID, channelID snowflake.ID) error

	// FindCategory returns the first category whose name matches one of
	// names, case-insensitively. Returns ENOTFOUND if there is none.
	FindCategory(ctx context.Context, guildID snowflake.ID, names []string) (snowflake.ID, error)
	CreateCategory(ctx context.Context, guildID snowflake.ID, name string) (snowflake.ID, error)
	MoveChannel(ctx context.Context, channelID, categoryID snowflake.ID) error

	SendMessage(ctx context.Context, channelID snowflake.ID, msg *Message) (snowflake.ID, error)
	AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string) error
	SendDirectMessage(ctx context.Context, userID snowflake.ID, content string) error
}

// Message is a platform neutral rich message.
type Message struct {
	Title       string
	Description string
	Color       int
	Fields      []MessageField
}

type MessageField struct {
	Name   string
	Value  string
	Inline bool
}

// Reaction is an inbound reaction add or remove.
type Reaction struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
	UserID    snowflake.ID
	Emoji     string

	// Set when the reaction came from a bot account, including this one.
	Bot bool
}
