package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/flagbearer/ctfbot/ctftime"
	"github.com/flagbearer/ctfbot/lifecycle"
)

// DigestConfig controls the CTFtime digest window.
type DigestConfig struct {
	Weeks int
	Limit int
}

func (s *Server) handleInfoCTF(event *handler.CommandEvent) error {
	vote, ok := event.SlashCommandInteractionData().OptBool("vote")

	// In order to enable vote it needs to be both set and enabled.
	vote = vote && ok

	weeks := s.Digest.Weeks
	maybeWeeks, ok := event.SlashCommandInteractionData().OptInt("weeks")
	if ok && maybeWeeks > 0 {
		weeks = maybeWeeks
	}

	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	now := time.Now()
	filter := ctftime.Upcoming(now, weeks, maxEmbeds)
	events, err := s.CTFTimeClient.FindEvents(ctx, filter)
	if err != nil {
		return Error(event, err)
	}

	embeds := []discord.Embed{}

	for i, ev := range events {
		if i == maxEmbeds {
			break
		}

		title := ev.Title
		if vote {
			title = fmt.Sprintf("%s %s", keycap(i+1), ev.Title)
		}

		embeds = append(embeds, eventEmbed(ev, title, now))
	}

	if len(embeds) > 0 {
		msg, err := s.client.Rest().CreateMessage(event.Channel().ID(), discord.NewMessageCreateBuilder().
			SetEmbeds(embeds...).
			Build(), rest.WithCtx(ctx))
		if err != nil {
			return Error(event, gatewayError(err))
		}

		if vote {
			for i := range embeds {
				if err := s.client.Rest().AddReaction(event.Channel().ID(), msg.ID, keycap(i+1), rest.WithCtx(ctx)); err != nil {
					return Error(event, gatewayError(err))
				}
			}
		}
	}

	_, err = event.CreateFollowupMessage(discord.NewMessageCreateBuilder().
		SetContentf("Listed %d upcoming CTF, from now (%s) and %s.\nHappy CTFing! :smile:", len(embeds), formatTime(&now), formatTime(filter.Finish)).
		ClearAllowedMentions().
		SetEphemeral(true).
		Build())
	return err
}

func eventEmbed(ev *ctftime.Event, title string, now time.Time) discord.Embed {
	inline := true
	return discord.Embed{
		Title:       title,
		Description: ev.Description,
		Footer: &discord.EmbedFooter{
			Text: "Informations provided here may not be correct or up to date",
		},
		Color: ColorNotQuiteBlack,
		URL:   ev.URL,
		Thumbnail: &discord.EmbedResource{
			URL:    ev.Logo,
			Width:  100,
			Height: 100,
		},
		Timestamp: &now,
		Fields: []discord.EmbedField{
			{
				Name:  "Organizers",
				Value: orDash(ev.OrganizerNames()),
			},
			{
				Name:   "Starts",
				Value:  fmt.Sprintf("%s (%s)", formatTime(&ev.Start), humanize.RelTime(ev.Start, now, "ago", "from now")),
				Inline: &inline,
			},
			{
				Name:   "Ends",
				Value:  formatTime(&ev.Finish),
				Inline: &inline,
			},
			{
				Name:   "Rating",
				Value:  strconv.FormatFloat(ev.Weight, 'f', -1, 64),
				Inline: &inline,
			},
			{
				Name:   "Enrolled participants",
				Value:  humanize.Comma(int64(ev.Participants)),
				Inline: &inline,
			},
			{
				Name:  "CTFTime",
				Value: orDash(ev.CTFTimeURL),
			},
			{
				Name:  "CTF link",
				Value: orDash(ev.URL),
			},
		},
	}
}

// orDash keeps embed fields from being empty, which Discord rejects.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (s *Server) handleCTFDigest(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(true); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	channelID := s.botChannelID
	if channelID == 0 {
		channelID = event.Channel().ID()
	}

	if err := s.postCTFDigest(ctx, channelID); err != nil {
		return Error(event, err)
	}
	return Respond(event, "CTF digest posted", fmt.Sprintf("Check <#%s>.", channelID))
}

// PostCTFDigest posts the upcoming CTFtime events to the bot channel.
func (s *Server) PostCTFDigest(ctx context.Context) error {
	return s.postCTFDigest(ctx, s.botChannelID)
}

func (s *Server) postCTFDigest(ctx context.Context, channelID snowflake.ID) error {
	now := time.Now()
	events, err := s.CTFTimeClient.FindEvents(ctx, ctftime.Upcoming(now, s.Digest.Weeks, s.Digest.Limit))
	if err != nil {
		lifecycle.Notify(ctx, s.Logger, "digest failure notice", func(ctx context.Context) error {
			_, err := s.client.Rest().CreateMessage(channelID, discord.NewMessageCreateBuilder().
				SetContent("❌ Could not fetch upcoming CTFs from CTFtime. Please try again later.").
				Build(), rest.WithCtx(ctx))
			return err
		})
		return fmt.Errorf("fetch ctftime digest: %w", err)
	}

	_, err = s.client.Rest().CreateMessage(channelID, digestMessage(events, s.Digest.Weeks, now, s.Location), rest.WithCtx(ctx))
	if err != nil {
		return gatewayError(err)
	}

	s.Logger.Info("ctftime digest posted", slog.Int("events", len(events)))
	return nil
}

// digestMessage lists the events of the next weeks in a single embed, one
// field per event.
func digestMessage(events []*ctftime.Event, weeks int, now time.Time, loc *time.Location) discord.MessageCreate {
	title := fmt.Sprintf("📅 Upcoming CTFs for the next %s", pluralWeeks(weeks))
	if len(events) == 0 {
		return discord.NewMessageCreateBuilder().
			SetContentf("%s\n\nNo CTF is scheduled.", title).
			Build()
	}

	builder := discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(fmt.Sprintf("%d CTFs from CTFtime", len(events))).
		SetColor(ColorGreen).
		SetTimestamp(now).
		SetFooterText("Data from the CTFtime API")

	for i, ev := range events {
		if i == maxEmbedFields {
			break
		}

		start, finish := ev.Start.In(loc), ev.Finish.In(loc)
		value := fmt.Sprintf("🕐 **Start**: %s\n🏁 **End**: %s\n⏱️ **Duration**: %s\n🔗 [CTFtime](%s)",
			start.Format("01/02 15:04 MST"),
			finish.Format("01/02 15:04 MST"),
			duration(ev.Length()),
			ev.CTFTimeURL)
		builder.AddField(fmt.Sprintf("%d. %s", i+1, ev.Title), value, false)
	}

	return discord.NewMessageCreateBuilder().
		SetEmbeds(builder.Build()).
		Build()
}

func pluralWeeks(weeks int) string {
	if weeks == 1 {
		return "week"
	}
	return fmt.Sprintf("%d weeks", weeks)
}

// duration renders d in whole hours.
func duration(d time.Duration) string {
	hours := int(d.Hours())
	if hours == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", hours)
}
