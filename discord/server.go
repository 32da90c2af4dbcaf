package discord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
	"github.com/flagbearer/ctfbot/ctftime"
	"github.com/flagbearer/ctfbot/dice"
	"github.com/flagbearer/ctfbot/lifecycle"
)

// Time allowed for a single command or event to finish.
const commandTimeout = 30 * time.Second

type Server struct {
	GuildID      string
	BotToken     string
	BotChannelID string

	router       handler.Router
	client       bot.Client
	botChannelID snowflake.ID

	ready     chan struct{}
	readyOnce sync.Once

	Logger   *slog.Logger
	Location *time.Location
	Digest   DigestConfig

	Lifecycle          *lifecycle.Manager
	EventService       ctfbot.EventService
	TrackedUserService ctfbot.TrackedUserService
	ScoreService       ctfbot.ScoreService
	CTFTimeClient      *ctftime.Client
	Dice               *dice.Roller
}

func NewServer() *Server {
	s := &Server{
		router:   handler.New(),
		ready:    make(chan struct{}),
		Logger:   slog.Default(),
		Location: time.UTC,
		Digest:   DigestConfig{Weeks: 2, Limit: 20},
		Dice:     dice.New(nil),
	}

	// These routes are restricted to administrators.
	s.router.Group(func(r handler.Router) {
		r.Use(AdminOnly)
		r.Command("/announce_ctf", s.handleAnnounceCTF)
		r.Command("/settime_ctf", s.handleSetTimeCTF)
		r.Command("/end_ctf", s.handleEndCTF)
		r.Command("/delete_ctf", s.handleDeleteCTF)
		r.Command("/add_alpaca", s.handleAddAlpaca)
		r.Command("/del_alpaca", s.handleDelAlpaca)
	})

	// These routes only work inside a CTF channel.
	s.router.Group(func(r handler.Router) {
		r.Use(s.MustBeInsideCTF)
		r.Command("/flag", s.handleFlag("🚩"))
	})

	// These routes are not authenticated.
	s.router.Group(func(r handler.Router) {
		r.Command("/list_ctf", s.handleListCTF)
		r.Command("/info_ctf", s.handleInfoCTF)
		r.Command("/ctf", s.handleCTFDigest)
		r.Command("/show_alpaca", s.handleShowAlpaca)
		r.Command("/show_alpaca_score", s.handleShowAlpacaScore)
		r.Command("/ping", s.handlePing)
		r.Command("/hello", s.handleGreeting("Hello, %s!"))
		r.Command("/gm", s.handleGreeting("Good morning, %s!"))
		r.Command("/gn", s.handleGreeting("Have a good night, %s!"))
		r.Command("/roll", s.handleRoll)
		r.Command("/echo", s.handleEcho)
		r.Command("/pin", s.handlePin(true))
		r.Command("/unpin", s.handlePin(false))
	})

	return s
}

func (s *Server) Open(ctx context.Context) (err error) {
	guildID, err := snowflake.Parse(s.GuildID)
	if err != nil {
		return err
	}

	if s.BotChannelID != "" {
		if s.botChannelID, err = snowflake.Parse(s.BotChannelID); err != nil {
			return err
		}
	}

	s.client, err = disgo.New(
		s.BotToken,
		bot.WithLogger(s.Logger),
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(gateway.IntentGuilds|gateway.IntentGuildMembers|gateway.IntentGuildMessageReactions)),
		bot.WithEventListeners(
			s.router,
			bot.NewListenerFunc(s.onReady),
			bot.NewListenerFunc(s.onReactionAdd),
			bot.NewListenerFunc(s.onReactionRemove),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds|cache.FlagChannels|cache.FlagMembers|cache.FlagRoles),
		),
	)
	if err != nil {
		return err
	}

	if err = handler.SyncCommands(s.client, commands, []snowflake.ID{guildID}); err != nil {
		return err
	}

	return s.client.OpenGateway(ctx)
}

func (s *Server) Close(ctx context.Context) error {
	if s.client != nil {
		s.client.Close(ctx)
	}

	return nil
}

// Ready is closed once the gateway session is established.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

// scrapeTimeout leaves room for one paced request per tracked user.
func (s *Server) scrapeTimeout() time.Duration {
	return 10 * time.Minute
}

func (s *Server) onReady(e *events.Ready) {
	s.readyOnce.Do(func() { close(s.ready) })
	s.Logger.Info("discord session ready",
		slog.String("user", e.User.Username),
		slog.Int("guilds", len(e.Guilds)))
}

func (s *Server) onReactionAdd(e *events.GuildMessageReactionAdd) {
	ctx, cancel := s.commandContext()
	defer cancel()

	err := s.Lifecycle.HandleReactionAdd(ctx, ctfbot.Reaction{
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		MessageID: e.MessageID,
		UserID:    e.UserID,
		Emoji:     e.Emoji.Reaction(),
		Bot:       e.Member.User.Bot || e.UserID == e.Client().ID(),
	})
	if err != nil {
		s.Logger.Error("cannot handle reaction add",
			slog.String("message", e.MessageID.String()),
			slog.String("user", e.UserID.String()),
			slog.Any("err", err))
	}
}

func (s *Server) onReactionRemove(e *events.GuildMessageReactionRemove) {
	ctx, cancel := s.commandContext()
	defer cancel()

	isBot := e.UserID == e.Client().ID()
	if member, ok := e.Client().Caches().Member(e.GuildID, e.UserID); ok {
		isBot = isBot || member.User.Bot
	}

	err := s.Lifecycle.HandleReactionRemove(ctx, ctfbot.Reaction{
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		MessageID: e.MessageID,
		UserID:    e.UserID,
		Emoji:     e.Emoji.Reaction(),
		Bot:       isBot,
	})
	if err != nil {
		s.Logger.Error("cannot handle reaction remove",
			slog.String("message", e.MessageID.String()),
			slog.String("user", e.UserID.String()),
			slog.Any("err", err))
	}
}
