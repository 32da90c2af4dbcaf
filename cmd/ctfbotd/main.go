package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/flagbearer/ctfbot"
	"github.com/flagbearer/ctfbot/alpacahack"
	"github.com/flagbearer/ctfbot/ctftime"
	"github.com/flagbearer/ctfbot/discord"
	"github.com/flagbearer/ctfbot/lifecycle"
	"github.com/flagbearer/ctfbot/schedule"
	"github.com/flagbearer/ctfbot/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build version, injected during build.
var (
	version string
	commit  string
)

type Config struct {
	Discord struct {
		GuildID      string `toml:"guild_id"`
		BotToken     string `toml:"bot_token"`
		BotChannelID string `toml:"bot_channel_id"`
	} `toml:"discord"`

	DB struct {
		DSN string `toml:"dsn"`
	} `toml:"db"`

	CTF struct {
		MarkerEmoji            string   `toml:"marker_emoji"`
		ArchiveCategory        string   `toml:"archive_category"`
		ArchiveCategoryAliases []string `toml:"archive_category_aliases"`
		SweepInterval          string   `toml:"sweep_interval"`
	} `toml:"ctf"`

	Schedule struct {
		Timezone         string `toml:"timezone"`
		CTFTimeDigest    string `toml:"ctftime_digest"`
		AlpacaHackDigest string `toml:"alpacahack_digest"`
		GoodMorning      string `toml:"good_morning"`
	} `toml:"schedule"`

	CTFTime struct {
		Weeks   int    `toml:"weeks"`
		Limit   int    `toml:"limit"`
		BaseURL string `toml:"base_url"`
	} `toml:"ctftime"`

	AlpacaHack struct {
		BaseURL string `toml:"base_url"`
	} `toml:"alpacahack"`

	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

const (
	DefaultDSN        = "~/ctfbot.sqlite3"
	DefaultConfigPath = "~/ctfbot.toml"
)

const (
	DefaultSweepInterval    = "1m"
	DefaultTimezone         = "Asia/Tokyo"
	DefaultCTFTimeDigest    = "0 9 * * 1"
	DefaultAlpacaHackDigest = "0 23 * * *"
	DefaultGoodMorning      = "47 4 * * *"
)

// DefaultConfig returns a new instance of Config with defaults set.
func DefaultConfig() Config {
	var config Config
	config.DB.DSN = DefaultDSN

	lc := lifecycle.DefaultConfig()
	config.CTF.MarkerEmoji = lc.MarkerEmoji
	config.CTF.ArchiveCategory = lc.ArchiveCategory
	config.CTF.ArchiveCategoryAliases = lc.ArchiveCategoryAliases
	config.CTF.SweepInterval = DefaultSweepInterval

	config.Schedule.Timezone = DefaultTimezone
	config.Schedule.CTFTimeDigest = DefaultCTFTimeDigest
	config.Schedule.AlpacaHackDigest = DefaultAlpacaHackDigest
	config.Schedule.GoodMorning = DefaultGoodMorning

	config.CTFTime.Weeks = 2
	config.CTFTime.Limit = 20
	config.CTFTime.BaseURL = ctftime.DefaultBaseURL
	config.AlpacaHack.BaseURL = alpacahack.DefaultBaseURL

	config.Log.Level = "info"
	return config
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return errors.New("discord.bot_token required")
	} else if c.Discord.GuildID == "" {
		return errors.New("discord.guild_id required")
	}

	if d, err := time.ParseDuration(c.CTF.SweepInterval); err != nil {
		return fmt.Errorf("ctf.sweep_interval: %w", err)
	} else if d < time.Second {
		return fmt.Errorf("ctf.sweep_interval: must be at least 1s, got %s", d)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}

	if c.CTFTime.Weeks < 1 {
		return errors.New("ctftime.weeks: must be positive")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func main() {
	// Propagate build information to root package to share globally.
	ctfbot.Version = version
	ctfbot.Commit = commit

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := NewMain()

	// Parse command line flags & load configuration.
	if err := m.ParseFlagAndConfig(ctx, os.Args[1:]); errors.Is(err, flag.ErrHelp) {
		os.Exit(1)
	} else if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := m.Run(ctx); err != nil {
		_ = m.Close(context.Background())
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	<-ctx.Done()

	// The signal context is done, give the shutdown its own deadline.
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if err := m.Close(closeCtx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type Main struct {
	Config     Config
	ConfigPath string

	Logger *slog.Logger

	DB *sqlite.DB

	Discord   *discord.Server
	Scheduler *schedule.Scheduler

	MetricsServer *http.Server
}

func NewMain() *Main {
	return &Main{
		Discord: discord.NewServer(),
		DB:      sqlite.NewDB(""),
		Logger:  slog.Default(),

		Config:     DefaultConfig(),
		ConfigPath: DefaultConfigPath,
	}
}

func (m *Main) Close(ctx context.Context) error {
	if m.Scheduler != nil {
		if err := m.Scheduler.Close(ctx); err != nil {
			m.Logger.Warn("scheduler did not stop in time", slog.Any("err", err))
		}
	}

	if m.Discord != nil {
		_ = m.Discord.Close(ctx)
	}

	if m.MetricsServer != nil {
		_ = m.MetricsServer.Shutdown(ctx)
	}

	if m.DB != nil {
		return m.DB.Close()
	}

	return nil
}

func (m *Main) ParseFlagAndConfig(ctx context.Context, args []string) error {
	f := flag.NewFlagSet("ctfbotd", flag.ContinueOnError)
	f.StringVar(&m.ConfigPath, "config-path", DefaultConfigPath, "config file path")
	if err := f.Parse(args); err != nil {
		return err
	}

	// The expand() function is here to automatically expand "~" to the user's
	// home directory. This is a common task as configuration files are typing
	// under the home directory during local development.
	configPath, err := expand(m.ConfigPath)
	if err != nil {
		return err
	}

	// Read our TOML formatted configuration file.
	config, err := ReadConfigFile(configPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", m.ConfigPath)
	} else if err != nil {
		return err
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.ConfigPath, err)
	}

	m.Config = config

	return nil
}

// expand returns path using tilde expansion. This means that a file path that
// begins with the "~" will be expanded to prefix the user's home directory.
func expand(path string) (string, error) {
	// Ignore path if it hasn't a leading tilde.
	if path != "~" && !strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return filepath.Clean(path), nil
	}

	// Fetch the current user to determine the home path.
	u, err := user.Current()
	if err != nil {
		return filepath.Clean(path), err
	} else if u.HomeDir == "" {
		return filepath.Clean(path), errors.New("home directory unset")
	}

	// If the path is composed only by the tilde return the home directory.
	if path == "~" {
		return u.HomeDir, nil
	}

	return filepath.Join(u.HomeDir, strings.TrimPrefix(path, "~"+string(os.PathSeparator))), nil
}

// ReadConfigFile unmarshals config from filename on top of the defaults.
func ReadConfigFile(filename string) (Config, error) {
	config := DefaultConfig()
	if buf, err := os.ReadFile(filename); err != nil {
		return config, err
	} else if err := toml.Unmarshal(buf, &config); err != nil {
		return config, err
	}
	return config, nil
}

func (m *Main) Run(ctx context.Context) (err error) {
	// Config was validated, these cannot fail.
	var level slog.Level
	_ = level.UnmarshalText([]byte(m.Config.Log.Level))
	m.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(m.Logger)

	loc, _ := time.LoadLocation(m.Config.Schedule.Timezone)
	sweepInterval, _ := time.ParseDuration(m.Config.CTF.SweepInterval)

	// Expand the DSN (in case it is in the user home directory ("~")).
	// Then open the database. This will instantiate the SQLite connection
	// and execute any pending migration files.
	if m.DB.DSN, err = expandDSN(m.Config.DB.DSN); err != nil {
		return fmt.Errorf("cannot expand dsn: %w", err)
	}
	if err := m.DB.Open(); err != nil {
		return fmt.Errorf("cannot open db: %w", err)
	}

	eventService := sqlite.NewEventService(m.DB)
	trackedUserService := sqlite.NewTrackedUserService(m.DB)

	ctfTimeClient := ctftime.NewClient()
	ctfTimeClient.BaseURL = m.Config.CTFTime.BaseURL

	alpacaClient := alpacahack.NewClient()
	alpacaClient.BaseURL = m.Config.AlpacaHack.BaseURL

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// The Discord server doubles as the lifecycle gateway.
	manager := lifecycle.NewManager(eventService, m.Discord)
	manager.Config = lifecycle.Config{
		MarkerEmoji:            m.Config.CTF.MarkerEmoji,
		ArchiveCategory:        m.Config.CTF.ArchiveCategory,
		ArchiveCategoryAliases: m.Config.CTF.ArchiveCategoryAliases,
	}
	manager.Logger = m.Logger.With(slog.String("component", "lifecycle"))
	manager.Metrics = lifecycle.NewMetrics(reg)

	m.Discord.BotToken = m.Config.Discord.BotToken
	m.Discord.GuildID = m.Config.Discord.GuildID
	m.Discord.BotChannelID = m.Config.Discord.BotChannelID
	m.Discord.Logger = m.Logger.With(slog.String("component", "discord"))
	m.Discord.Location = loc
	m.Discord.Digest = discord.DigestConfig{Weeks: m.Config.CTFTime.Weeks, Limit: m.Config.CTFTime.Limit}

	m.Discord.Lifecycle = manager
	m.Discord.EventService = eventService
	m.Discord.TrackedUserService = trackedUserService
	m.Discord.ScoreService = alpacaClient
	m.Discord.CTFTimeClient = ctfTimeClient

	m.Scheduler = schedule.NewScheduler(loc, m.Logger.With(slog.String("component", "schedule")))
	if err := m.Scheduler.Every(sweepInterval, "ctf sweep", manager.Sweep); err != nil {
		return err
	}

	// Timed posts need somewhere to go.
	if m.Config.Discord.BotChannelID != "" {
		for _, job := range []struct {
			name string
			spec string
			run  schedule.Job
		}{
			{"ctftime digest", m.Config.Schedule.CTFTimeDigest, m.Discord.PostCTFDigest},
			{"alpacahack scores", m.Config.Schedule.AlpacaHackDigest, m.Discord.PostAlpacaScores},
			{"good morning", m.Config.Schedule.GoodMorning, m.Discord.PostGoodMorning},
		} {
			if job.spec == "" {
				continue
			}
			if err := m.Scheduler.Cron(job.spec, job.name, job.run); err != nil {
				return err
			}
		}
	}

	if err := m.Discord.Open(ctx); err != nil {
		return err
	}

	// Sweeps wait for the gateway session.
	m.Scheduler.Open(m.Discord.Ready())

	if m.Config.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		m.MetricsServer = &http.Server{Addr: m.Config.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := m.MetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.Logger.Error("metrics listener stopped", slog.Any("err", err))
			}
		}()
	}

	m.Logger.Info("ctfbotd started",
		slog.String("version", ctfbot.Version),
		slog.String("commit", ctfbot.Commit))

	return nil
}

// expandDSN expands a datasource name. Ignores in-memory databases.
func expandDSN(dsn string) (string, error) {
	if dsn == ":memory:" {
		return dsn, nil
	}
	return expand(dsn)
}
