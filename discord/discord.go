package discord

import (
	"log/slog"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/flagbearer/ctfbot"
)

type CreateFollowupMessager interface {
	CreateFollowupMessage(messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
	Client() bot.Client
}

// Error reports err to the user who issued the command. Operational errors
// are logged with full detail and shown as a generic notice.
func Error(event CreateFollowupMessager, err error) error {
	// Extract error code and message.
	code, message := ctfbot.ErrorCode(err), ctfbot.ErrorMessage(err)

	if ctfbot.IsOperational(err) {
		event.Client().Logger().Error("command failed", slog.String("code", code), slog.Any("err", err))
		message = "Something went wrong on my side. Please try again later."
	}

	// Print user message to response.
	_, err = event.CreateFollowupMessage(discord.NewMessageCreateBuilder().
		SetEmbeds(messageEmbedError(message)).
		SetEphemeral(true).
		Build())
	return err
}

// messageError is a utility that builds and outputs a embed.
func messageEmbedError(message string) discord.Embed {
	return discord.NewEmbedBuilder().
		SetTitle(":octagonal_sign: There was an error while handling your request.").
		SetColor(ColorRed).
		SetDescription(message).
		Build()
}

func messageEmbedSuccess(title string, description string) discord.Embed {
	return discord.NewEmbedBuilder().
		SetTitle(title).
		SetColor(ColorGreen).
		SetDescription(description).
		Build()
}

func Respond(event CreateFollowupMessager, title string, description string) error {
	_, err := event.CreateFollowupMessage(discord.NewMessageCreateBuilder().
		SetEmbeds(messageEmbedSuccess(title, description)).Build())
	return err
}

// embed converts a platform-neutral message into a Discord embed.
func embed(msg *ctfbot.Message) discord.Embed {
	e := discord.Embed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       msg.Color,
	}
	for _, f := range msg.Fields {
		inline := f.Inline
		e.Fields = append(e.Fields, discord.EmbedField{Name: f.Name, Value: f.Value, Inline: &inline})
	}
	return e
}
