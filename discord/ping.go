package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/disgo/rest"
	"github.com/flagbearer/ctfbot"
)

func (s *Server) handlePing(event *handler.CommandEvent) error {
	content := "pong!"
	if gw := event.Client().Gateway(); gw != nil {
		content = fmt.Sprintf("pong! (%s)", gw.Latency())
	}
	return event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
}

// handleGreeting replies with format applied to the caller's mention.
func (s *Server) handleGreeting(format string) handler.CommandHandler {
	return func(event *handler.CommandEvent) error {
		return event.CreateMessage(discord.NewMessageCreateBuilder().
			SetContentf(format, event.User().Mention()).
			Build())
	}
}

func (s *Server) handleRoll(event *handler.CommandEvent) error {
	expr, _ := event.SlashCommandInteractionData().OptString("dice")

	roll, err := s.Dice.Roll(expr)
	if err != nil {
		return event.CreateMessage(discord.NewMessageCreateBuilder().
			SetContent(ctfbot.ErrorMessage(err)).
			SetEphemeral(true).
			Build())
	}

	return event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(roll.String()).
		Build())
}

func (s *Server) handleEcho(event *handler.CommandEvent) error {
	return event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(event.SlashCommandInteractionData().String("message")).
		ClearAllowedMentions().
		Build())
}

// handlePin pins or unpins the message behind a link from this guild.
func (s *Server) handlePin(pin bool) handler.CommandHandler {
	return func(event *handler.CommandEvent) error {
		if err := event.DeferCreateMessage(false); err != nil {
			return err
		}

		ctx, cancel := s.commandContext()
		defer cancel()

		guildID, channelID, messageID, err := parseMessageLink(event.SlashCommandInteractionData().String("link"))
		if err != nil {
			return Error(event, err)
		} else if event.GuildID() == nil || guildID != *event.GuildID() {
			return Error(event, ctfbot.Errorf(ctfbot.EINVALID, "That message is not from this server."))
		}

		if pin {
			err = s.client.Rest().PinMessage(channelID, messageID, rest.WithCtx(ctx))
		} else {
			err = s.client.Rest().UnpinMessage(channelID, messageID, rest.WithCtx(ctx))
		}
		if err = gatewayError(err); ctfbot.ErrorCode(err) == ctfbot.EFORBIDDEN {
			return Error(event, ctfbot.Errorf(ctfbot.EFORBIDDEN, "I am not allowed to pin messages there."))
		} else if ctfbot.ErrorCode(err) == ctfbot.ENOTFOUND {
			return Error(event, ctfbot.Errorf(ctfbot.ENOTFOUND, "Message not found."))
		} else if err != nil {
			return Error(event, err)
		}

		action := "pinned"
		if !pin {
			action = "unpinned"
		}
		_, err = event.CreateFollowupMessage(discord.NewMessageCreateBuilder().
			SetContentf("%s %s a message.", event.User().Mention(), action).
			ClearAllowedMentions().
			Build())
		return err
	}
}

// PostGoodMorning greets the bot channel.
func (s *Server) PostGoodMorning(ctx context.Context) error {
	if err := s.send(ctx, s.botChannelID, "おはよう！朝4時に何してるんだい？"); err != nil {
		return err
	}
	s.Logger.Debug("good morning posted", slog.String("channel", s.botChannelID.String()))
	return nil
}
