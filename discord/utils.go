package discord

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
)

// Embed colors.
const (
	ColorBlurple       = 0x5865F2
	ColorGreen         = 0x57F287
	ColorYellow        = 0xFEE75C
	ColorRed           = 0xED4245
	ColorOrange        = 0xE67E22
	ColorNotQuiteBlack = 0x23272A
)

// Discord limits.
const (
	maxMessageLength = 2000
	maxEmbedFields   = 25
	maxEmbeds        = 10
)

func formatTime(t *time.Time) string {
	return fmt.Sprintf("<t:%d:F>", t.Unix())
}

// cheer() is a simple function that returns a random cheer phrase.
func cheer() string {
	cheers := []string{
		"Hooray",
		"Woo-hoo",
		"Cheers",
		"Yippee",
		"Yay",
		"Let's go",
		"Hip, hip, hooray",
		"Fantastic",
		"Celebrate",
		"Party time",
	}

	return cheers[rand.Intn(len(cheers))]
}

// keycap returns the keycap emoji for 1 through 10, used as vote reactions.
func keycap(i int) string {
	if i == 10 {
		return "🔟"
	}
	if i < 1 || i > 10 {
		return ""
	}
	return fmt.Sprintf("%d️⃣", i)
}

var messageLinkRegex = regexp.MustCompile(`^https://(?:(?:ptb|canary)\.)?discord(?:app)?\.com/channels/(\d+)/(\d+)/(\d+)$`)

// parseMessageLink splits a message link into its guild, channel and
// message IDs.
func parseMessageLink(link string) (guildID, channelID, messageID snowflake.ID, err error) {
	m := messageLinkRegex.FindStringSubmatch(strings.TrimSpace(link))
	if m == nil {
		return 0, 0, 0, ctfbot.Errorf(ctfbot.EINVALID, "Invalid message link.")
	}

	ids := make([]snowflake.ID, 3)
	for i := range ids {
		if ids[i], err = snowflake.Parse(m[i+1]); err != nil {
			return 0, 0, 0, ctfbot.Errorf(ctfbot.EINVALID, "Invalid message link.")
		}
	}
	return ids[0], ids[1], ids[2], nil
}

// codeBlocks wraps text in code blocks no longer than a Discord message,
// splitting on line boundaries. Lines longer than a message are cut.
func codeBlocks(text string) []string {
	const fence = "```"
	limit := maxMessageLength - 2*len(fence) - 2

	var blocks []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			blocks = append(blocks, fence+"\n"+b.String()+"\n"+fence)
			b.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if len(line) > limit {
			n := limit
			for n > 0 && !utf8.RuneStart(line[n]) {
				n--
			}
			line = line[:n]
		}
		if b.Len() > 0 && b.Len()+1+len(line) > limit {
			flush()
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	flush()

	return blocks
}
