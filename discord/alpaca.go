package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
)

func (s *Server) handleAddAlpaca(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(false); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	user := &ctfbot.TrackedUser{Name: strings.TrimSpace(event.SlashCommandInteractionData().String("name"))}
	if err := s.TrackedUserService.CreateTrackedUser(ctx, user); err != nil {
		return Error(event, err)
	}

	return Respond(event, "AlpacaHack user added", fmt.Sprintf("Now tracking `%s`.", user.Name))
}

func (s *Server) handleDelAlpaca(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(false); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	name := strings.TrimSpace(event.SlashCommandInteractionData().String("name"))
	if err := s.TrackedUserService.DeleteTrackedUser(ctx, name); err != nil {
		return Error(event, err)
	}

	return Respond(event, "AlpacaHack user removed", fmt.Sprintf("Stopped tracking `%s`.", name))
}

func (s *Server) handleShowAlpaca(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(false); err != nil {
		return err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	users, err := s.TrackedUserService.FindTrackedUsers(ctx)
	if err != nil {
		return Error(event, err)
	} else if len(users) == 0 {
		return Respond(event, "Tracked AlpacaHack users", "Nobody is tracked yet. Use `/add_alpaca`.")
	}

	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Name
	}

	_, err = event.CreateFollowupMessage(discord.NewMessageCreateBuilder().
		SetContent(codeBlocks(strings.Join(names, "\n"))[0]).
		Build())
	return err
}

func (s *Server) handleShowAlpacaScore(event *handler.CommandEvent) error {
	if err := event.DeferCreateMessage(false); err != nil {
		return err
	}

	// Scraping is paced at one page per second, so this may take a while.
	ctx, cancel := context.WithTimeout(context.Background(), s.scrapeTimeout())
	defer cancel()

	n, err := s.postAlpacaScores(ctx, event.Channel().ID())
	if err != nil {
		return Error(event, err)
	}
	return Respond(event, "AlpacaHack scores", fmt.Sprintf("Posted scores for %d users.", n))
}

// PostAlpacaScores posts the profile tables of every tracked user to the
// bot channel.
func (s *Server) PostAlpacaScores(ctx context.Context) error {
	_, err := s.postAlpacaScores(ctx, s.botChannelID)
	return err
}

func (s *Server) postAlpacaScores(ctx context.Context, channelID snowflake.ID) (int, error) {
	users, err := s.TrackedUserService.FindTrackedUsers(ctx)
	if err != nil {
		return 0, err
	}

	for _, user := range users {
		if err := s.send(ctx, channelID, "## "+user.Name); err != nil {
			return 0, err
		}

		sections, err := s.ScoreService.FindScoreSections(ctx, user.Name)
		if ctfbot.ErrorCode(err) == ctfbot.ENOTFOUND {
			if err := s.send(ctx, channelID, ctfbot.ErrorMessage(err)); err != nil {
				return 0, err
			}
			continue
		} else if err != nil {
			s.Logger.Warn("cannot fetch alpacahack profile", slog.String("user", user.Name), slog.Any("err", err))
			if err := s.send(ctx, channelID, fmt.Sprintf("Failed to get info for %s.", user.Name)); err != nil {
				return 0, err
			}
			continue
		}

		for _, section := range sections {
			for _, block := range codeBlocks(section.String()) {
				if err := s.send(ctx, channelID, block); err != nil {
					return 0, err
				}
			}
		}
	}

	return len(users), nil
}

// send posts plain content to a channel.
func (s *Server) send(ctx context.Context, channelID snowflake.ID, content string) error {
	_, err := s.client.Rest().CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(content).
		ClearAllowedMentions().
		Build(), rest.WithCtx(ctx))
	return gatewayError(err)
}
