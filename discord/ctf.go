package discord

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/dustin/go-humanize"
	"github.com/flagbearer/ctfbot"
)

func (s *Server) handleAnnounceCTF(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	name := event.SlashCommandInteractionData().String("name")
	ctf, err := s.Lifecycle.Announce(ctx, *event.GuildID(), event.Channel().ID(), name)
	if err != nil {
		return Error(event, err)
	}

	return Respond(event, fmt.Sprintf("CTF `%s` created", ctf.Name),
		fmt.Sprintf("Role <@&%s>, channels <#%s> and <#%s> are ready.\nUse `/settime_ctf` to schedule the end.",
			ctf.RoleID, ctf.TextChannelID, ctf.VoiceChannelID))
}

func (s *Server) handleSetTimeCTF(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	data := event.SlashCommandInteractionData()
	ctf, err := s.Lifecycle.SetEndTime(ctx, *event.GuildID(), data.String("name"), data.String("end_time"))
	if ctfbot.ErrorCode(err) == ctfbot.EINVALIDTIME {
		return Error(event, ctfbot.Errorf(ctfbot.EINVALIDTIME,
			"Invalid time format. Use `YYYY-MM-DD HH:MM:SS` or `YYYY-MM-DDTHH:MM[:SS]` (UTC)."))
	} else if err != nil {
		return Error(event, err)
	}

	return Respond(event, fmt.Sprintf("End time set for `%s`", ctf.Name),
		fmt.Sprintf("The CTF ends %s (%s).", formatTime(&ctf.EndTime), humanize.Time(ctf.EndTime)))
}

func (s *Server) handleEndCTF(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	name := event.SlashCommandInteractionData().String("name")
	if err := s.Lifecycle.End(ctx, *event.GuildID(), name); err != nil {
		return Error(event, err)
	}

	return Respond(event, fmt.Sprintf("CTF `%s` ended", name), "The channel has been archived.")
}

func (s *Server) handleDeleteCTF(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	name := event.SlashCommandInteractionData().String("name")
	if err := s.Lifecycle.Delete(ctx, *event.GuildID(), name); err != nil {
		return Error(event, err)
	}

	return Respond(event, fmt.Sprintf("CTF `%s` deleted", name), "Its role and channels were left untouched.")
}

func (s *Server) handleListCTF(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(false); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	ctfs, err := s.Lifecycle.List(ctx, *event.GuildID())
	if err != nil {
		return Error(event, err)
	}

	if len(ctfs) == 0 {
		return Respond(event, "Active CTFs", "No CTF is running. Ask an admin to `/announce_ctf` one!")
	}

	builder := discord.NewEmbedBuilder().
		SetTitle("Active CTFs").
		SetColor(ColorBlurple)
	for i, ctf := range ctfs {
		if i == maxEmbedFields {
			builder.SetFooterText(fmt.Sprintf("%d more not shown", len(ctfs)-maxEmbedFields))
			break
		}

		end := "not set"
		if !ctf.EndTime.IsZero() {
			end = fmt.Sprintf("%s (%s)", formatTime(&ctf.EndTime), humanize.Time(ctf.EndTime))
		}
		builder.AddField(ctf.Name, fmt.Sprintf("<#%s>\nEnds: %s", ctf.TextChannelID, end), false)
	}

	_, err = event.CreateFollowupMessage(discord.NewMessageCreateBuilder().
		SetEmbeds(builder.Build()).
		Build())
	return err
}

// handleFlag celebrates a solved challenge inside an event channel.
func (s *Server) handleFlag(emoji string) handler.CommandHandler {
	return func(event *handler.CommandEvent) error {
		challenge := strings.TrimSpace(event.SlashCommandInteractionData().String("challenge"))

		return event.CreateMessage(discord.NewMessageCreateBuilder().
			SetEmbeds(discord.NewEmbedBuilder().
				SetColor(ColorGreen).
				SetTitle(fmt.Sprintf("%s %s!", emoji, cheer())).
				SetDescriptionf("<@%s> captured the flag for `%s`.", event.User().ID, challenge).
				Build()).
			Build())
	}
}
