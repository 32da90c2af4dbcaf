package discord

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/handler"
	"github.com/flagbearer/ctfbot"
)

// This middleware restricts the routes to Administrators only.
var AdminOnly handler.Middleware = func(next handler.Handler) handler.Handler {
	return func(e *events.InteractionCreate) error {
		if m := e.Member(); m != nil && m.Permissions.Has(discord.PermissionAdministrator) {
			return next(e)
		}

		return e.Respond(discord.InteractionResponseTypeCreateMessage,
			discord.NewMessageCreateBuilder().
				SetContent("You're not authorized to run this command.").
				SetEphemeral(true).Build())
	}
}

// MustBeInsideCTF restricts the routes to the text channel of an active
// CTF.
func (s *Server) MustBeInsideCTF(next handler.Handler) handler.Handler {
	return func(e *events.InteractionCreate) error {
		ctx, cancel := s.commandContext()
		defer cancel()

		channelID := e.Channel().ID()
		active := true
		ctfs, _, err := s.EventService.FindEvents(ctx, ctfbot.EventFilter{
			GuildID:       e.GuildID(),
			TextChannelID: &channelID,
			IsActive:      &active,
			Limit:         1,
		})
		if err != nil {
			return err
		}

		if e.GuildID() == nil || len(ctfs) == 0 {
			return e.Respond(discord.InteractionResponseTypeCreateMessage,
				discord.NewMessageCreateBuilder().
					SetContentf("You're not inside a CTF, you cannot issue this command.").
					SetEphemeral(true).Build())
		}

		return next(e)
	}
}
