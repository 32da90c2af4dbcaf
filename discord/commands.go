package discord

import "github.com/disgoorg/disgo/discord"

func nameOption(description string) discord.ApplicationCommandOption {
	return discord.ApplicationCommandOptionString{
		Name:        "name",
		Description: description,
		Required:    true,
	}
}

var (
	commands = []discord.ApplicationCommandCreate{
		// CTF lifecycle, administrators only.
		discord.SlashCommandCreate{
			Name:        "announce_ctf",
			Description: "Announce a CTF: creates its role, text and voice channels",
			Options: []discord.ApplicationCommandOption{
				nameOption("CTF name (letters, digits, _ and - only)"),
			},
		},
		discord.SlashCommandCreate{
			Name:        "settime_ctf",
			Description: "Set when a CTF ends (UTC)",
			Options: []discord.ApplicationCommandOption{
				nameOption("CTF name"),
				discord.ApplicationCommandOptionString{
					Name:        "end_time",
					Description: "YYYY-MM-DD HH:MM:SS, YYYY-MM-DDTHH:MM:SS or YYYY-MM-DDTHH:MM",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        "end_ctf",
			Description: "End a CTF now and archive its channel",
			Options: []discord.ApplicationCommandOption{
				nameOption("CTF name"),
			},
		},
		discord.SlashCommandCreate{
			Name:        "delete_ctf",
			Description: "Forget a CTF entirely, leaving its role and channels alone",
			Options: []discord.ApplicationCommandOption{
				nameOption("CTF name"),
			},
		},
		discord.SlashCommandCreate{
			Name:        "list_ctf",
			Description: "List the active CTFs",
		},
		discord.SlashCommandCreate{
			Name:        "flag",
			Description: "Celebrate a captured flag",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "challenge",
					Description: "Challenge name",
					Required:    true,
				},
			},
		},

		// CTFtime.
		discord.SlashCommandCreate{
			Name:        "info_ctf",
			Description: "Information on upcoming CTFs",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionBool{
					Name:        "vote",
					Description: "Enable voting",
				},
				discord.ApplicationCommandOptionInt{
					Name:        "weeks",
					Description: "How many weeks away to search available CTFs.",
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        "ctf",
			Description: "Post the upcoming CTF digest to the bot channel",
		},

		// AlpacaHack.
		discord.SlashCommandCreate{
			Name:        "add_alpaca",
			Description: "Track an AlpacaHack user",
			Options: []discord.ApplicationCommandOption{
				nameOption("AlpacaHack user name"),
			},
		},
		discord.SlashCommandCreate{
			Name:        "del_alpaca",
			Description: "Stop tracking an AlpacaHack user",
			Options: []discord.ApplicationCommandOption{
				nameOption("AlpacaHack user name"),
			},
		},
		discord.SlashCommandCreate{
			Name:        "show_alpaca",
			Description: "List the tracked AlpacaHack users",
		},
		discord.SlashCommandCreate{
			Name:        "show_alpaca_score",
			Description: "Show the AlpacaHack profile of every tracked user",
		},

		// Misc.
		discord.SlashCommandCreate{
			Name:        "ping",
			Description: "Check that the bot is alive",
		},
		discord.SlashCommandCreate{
			Name:        "hello",
			Description: "Say hello",
		},
		discord.SlashCommandCreate{
			Name:        "gm",
			Description: "Good morning",
		},
		discord.SlashCommandCreate{
			Name:        "gn",
			Description: "Good night",
		},
		discord.SlashCommandCreate{
			Name:        "roll",
			Description: "Roll dice in NdM format",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "dice",
					Description: "NdM, 1-100 dice with 1-100 sides (default 1d100)",
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        "echo",
			Description: "Repeat a message",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "message",
					Description: "Message to repeat",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        "pin",
			Description: "Pin a message",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "link",
					Description: "Discord message link",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        "unpin",
			Description: "Unpin a message",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "link",
					Description: "Discord message link",
					Required:    true,
				},
			},
		},
	}
)
