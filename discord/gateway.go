package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
)

// Ensure server implements interface.
var _ ctfbot.Gateway = (*Server)(nil)

const (
	memberTextPermissions  = discord.PermissionViewChannel | discord.PermissionSendMessages | discord.PermissionReadMessageHistory | discord.PermissionAddReactions | discord.PermissionAttachFiles | discord.PermissionEmbedLinks
	memberVoicePermissions = discord.PermissionViewChannel | discord.PermissionConnect | discord.PermissionSpeak
)

// GuildAvailable reports whether the bot is still a member of the guild.
func (s *Server) GuildAvailable(ctx context.Context, guildID snowflake.ID) bool {
	if _, ok := s.client.Caches().Guild(guildID); ok {
		return true
	}

	_, err := s.client.Rest().GetGuild(guildID, false, rest.WithCtx(ctx))
	switch ctfbot.ErrorCode(gatewayError(err)) {
	case ctfbot.ENOTFOUND, ctfbot.EFORBIDDEN:
		return false
	default:
		// Transient failures should not skip the teardown.
		return true
	}
}

func (s *Server) CreateRole(ctx context.Context, guildID snowflake.ID, name string) (snowflake.ID, error) {
	role, err := s.client.Rest().CreateRole(guildID, discord.RoleCreate{
		Name:        name,
		Mentionable: true,
	}, rest.WithCtx(ctx))
	if err != nil {
		return 0, gatewayError(err)
	}
	return role.ID, nil
}

func (s *Server) DeleteRole(ctx context.Context, guildID, roleID snowflake.ID) error {
	return gatewayError(s.client.Rest().DeleteRole(guildID, roleID, rest.WithCtx(ctx)))
}

func (s *Server) AddMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	return gatewayError(s.client.Rest().AddMemberRole(guildID, userID, roleID, rest.WithCtx(ctx)))
}

func (s *Server) RemoveMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	return gatewayError(s.client.Rest().RemoveMemberRole(guildID, userID, roleID, rest.WithCtx(ctx)))
}

// CreateTextChannel creates a text channel visible only to roleID and the
// bot. The @everyone role shares its ID with the guild.
func (s *Server) CreateTextChannel(ctx context.Context, guildID snowflake.ID, name string, roleID snowflake.ID) (snowflake.ID, error) {
	channel, err := s.client.Rest().CreateGuildChannel(guildID, discord.GuildTextChannelCreate{
		Name:                 name,
		Topic:                name + " CTF",
		PermissionOverwrites: s.restrictTo(guildID, roleID, memberTextPermissions),
	}, rest.WithCtx(ctx))
	if err != nil {
		return 0, gatewayError(err)
	}
	return channel.ID(), nil
}

func (s *Server) CreateVoiceChannel(ctx context.Context, guildID snowflake.ID, name string, roleID snowflake.ID) (snowflake.ID, error) {
	channel, err := s.client.Rest().CreateGuildChannel(guildID, discord.GuildVoiceChannelCreate{
		Name:                 name,
		PermissionOverwrites: s.restrictTo(guildID, roleID, memberVoicePermissions),
	}, rest.WithCtx(ctx))
	if err != nil {
		return 0, gatewayError(err)
	}
	return channel.ID(), nil
}

func (s *Server) restrictTo(guildID, roleID snowflake.ID, allow discord.Permissions) []discord.PermissionOverwrite {
	return []discord.PermissionOverwrite{
		discord.RolePermissionOverwrite{
			RoleID: guildID,
			Deny:   discord.PermissionViewChannel,
		},
		discord.RolePermissionOverwrite{
			RoleID: roleID,
			Allow:  allow,
		},
		discord.MemberPermissionOverwrite{
			UserID: s.client.ID(),
			Allow:  allow,
		},
	}
}

func (s *Server) DeleteChannel(ctx context.Context, channelID snowflake.ID) error {
	return gatewayError(s.client.Rest().DeleteChannel(channelID, rest.WithCtx(ctx)))
}

// PublishChannel replaces the channel overwrites so every member can read
// it.
func (s *Server) PublishChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	overwrites := []discord.PermissionOverwrite{
		discord.RolePermissionOverwrite{
			RoleID: guildID,
			Allow:  discord.PermissionViewChannel | discord.PermissionReadMessageHistory,
		},
	}

	_, err := s.client.Rest().UpdateChannel(channelID, discord.GuildTextChannelUpdate{
		PermissionOverwrites: &overwrites,
	}, rest.WithCtx(ctx))
	return gatewayError(err)
}

// FindCategory returns the first category whose name matches one of names,
// ignoring case.
func (s *Server) FindCategory(ctx context.Context, guildID snowflake.ID, names []string) (snowflake.ID, error) {
	channels, err := s.client.Rest().GetGuildChannels(guildID, rest.WithCtx(ctx))
	if err != nil {
		return 0, gatewayError(err)
	}

	for _, name := range names {
		for _, channel := range channels {
			if channel.Type() == discord.ChannelTypeGuildCategory && strings.EqualFold(channel.Name(), name) {
				return channel.ID(), nil
			}
		}
	}
	return 0, ctfbot.Errorf(ctfbot.ENOTFOUND, "No archive category.")
}

func (s *Server) CreateCategory(ctx context.Context, guildID snowflake.ID, name string) (snowflake.ID, error) {
	category, err := s.client.Rest().CreateGuildChannel(guildID, discord.GuildCategoryChannelCreate{
		Name: name,
	}, rest.WithCtx(ctx))
	if err != nil {
		return 0, gatewayError(err)
	}
	return category.ID(), nil
}

func (s *Server) MoveChannel(ctx context.Context, channelID, categoryID snowflake.ID) error {
	_, err := s.client.Rest().UpdateChannel(channelID, discord.GuildTextChannelUpdate{
		ParentID: &categoryID,
	}, rest.WithCtx(ctx))
	return gatewayError(err)
}

func (s *Server) SendMessage(ctx context.Context, channelID snowflake.ID, msg *ctfbot.Message) (snowflake.ID, error) {
	m, err := s.client.Rest().CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetEmbeds(embed(msg)).
		Build(), rest.WithCtx(ctx))
	if err != nil {
		return 0, gatewayError(err)
	}
	return m.ID, nil
}

func (s *Server) AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string) error {
	return gatewayError(s.client.Rest().AddReaction(channelID, messageID, emoji, rest.WithCtx(ctx)))
}

func (s *Server) SendDirectMessage(ctx context.Context, userID snowflake.ID, content string) error {
	channel, err := s.client.Rest().CreateDMChannel(userID, rest.WithCtx(ctx))
	if err != nil {
		return gatewayError(err)
	}

	_, err = s.client.Rest().CreateMessage(channel.ID(), discord.NewMessageCreateBuilder().
		SetContent(content).
		Build(), rest.WithCtx(ctx))
	return gatewayError(err)
}

// gatewayError maps a Discord REST failure onto the application error
// codes: 403 is EFORBIDDEN, 404 is ENOTFOUND and anything else EGATEWAY.
func gatewayError(err error) error {
	if err == nil {
		return nil
	}

	var restErr *rest.Error
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return ctfbot.WrapError(err, ctfbot.EGATEWAY, "Discord request failed.")
	}

	message := restErr.Message
	if message == "" {
		message = http.StatusText(restErr.Response.StatusCode)
	}

	switch restErr.Response.StatusCode {
	case http.StatusForbidden:
		return ctfbot.WrapError(err, ctfbot.EFORBIDDEN, "%s", message)
	case http.StatusNotFound:
		return ctfbot.WrapError(err, ctfbot.ENOTFOUND, "%s", message)
	default:
		return ctfbot.WrapError(err, ctfbot.EGATEWAY, "%s", message)
	}
}
