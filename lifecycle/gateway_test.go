package lifecycle

import (
	"context"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/flagbearer/ctfbot"
)

// fakeGateway is an in-memory ctfbot.Gateway. Objects it created can be
// deleted once; deleting again reports ENOTFOUND like Discord does.
type fakeGateway struct {
	nextID snowflake.ID

	roles      map[snowflake.ID]string
	channels   map[snowflake.ID]string
	categories map[snowflake.ID]string
	parents    map[snowflake.ID]snowflake.ID
	public     map[snowflake.ID]bool
	members    map[snowflake.ID]map[snowflake.ID]bool // role -> users
	messages   map[snowflake.ID][]*ctfbot.Message     // channel -> messages
	reactions  map[snowflake.ID]string
	dms        map[snowflake.ID][]string

	goneGuilds map[snowflake.ID]bool

	// Errors returned by the named method, keyed by method name.
	errs map[string]error

	calls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextID:     1000,
		roles:      map[snowflake.ID]string{},
		channels:   map[snowflake.ID]string{},
		categories: map[snowflake.ID]string{},
		parents:    map[snowflake.ID]snowflake.ID{},
		public:     map[snowflake.ID]bool{},
		members:    map[snowflake.ID]map[snowflake.ID]bool{},
		messages:   map[snowflake.ID][]*ctfbot.Message{},
		reactions:  map[snowflake.ID]string{},
		dms:        map[snowflake.ID][]string{},
		goneGuilds: map[snowflake.ID]bool{},
		errs:       map[string]error{},
	}
}

func (g *fakeGateway) call(name string) error {
	g.calls = append(g.calls, name)
	return g.errs[name]
}

func (g *fakeGateway) id() snowflake.ID {
	g.nextID++
	return g.nextID
}

func (g *fakeGateway) GuildAvailable(ctx context.Context, guildID snowflake.ID) bool {
	g.calls = append(g.calls, "GuildAvailable")
	return !g.goneGuilds[guildID]
}

func (g *fakeGateway) CreateRole(ctx context.Context, guildID snowflake.ID, name string) (snowflake.ID, error) {
	if err := g.call("CreateRole"); err != nil {
		return 0, err
	}
	id := g.id()
	g.roles[id] = name
	return id, nil
}

func (g *fakeGateway) DeleteRole(ctx context.Context, guildID, roleID snowflake.ID) error {
	if err := g.call("DeleteRole"); err != nil {
		return err
	}
	if _, ok := g.roles[roleID]; !ok {
		return ctfbot.Errorf(ctfbot.ENOTFOUND, "Unknown role.")
	}
	delete(g.roles, roleID)
	return nil
}

func (g *fakeGateway) AddMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	if err := g.call("AddMemberRole"); err != nil {
		return err
	}
	if g.members[roleID] == nil {
		g.members[roleID] = map[snowflake.ID]bool{}
	}
	g.members[roleID][userID] = true
	return nil
}

func (g *fakeGateway) RemoveMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	if err := g.call("RemoveMemberRole"); err != nil {
		return err
	}
	delete(g.members[roleID], userID)
	return nil
}

func (g *fakeGateway) CreateTextChannel(ctx context.Context, guildID snowflake.ID, name string, roleID snowflake.ID) (snowflake.ID, error) {
	if err := g.call("CreateTextChannel"); err != nil {
		return 0, err
	}
	id := g.id()
	g.channels[id] = name
	return id, nil
}

func (g *fakeGateway) CreateVoiceChannel(ctx context.Context, guildID snowflake.ID, name string, roleID snowflake.ID) (snowflake.ID, error) {
	if err := g.call("CreateVoiceChannel"); err != nil {
		return 0, err
	}
	id := g.id()
	g.channels[id] = name
	return id, nil
}

func (g *fakeGateway) DeleteChannel(ctx context.Context, channelID snowflake.ID) error {
	if err := g.call("DeleteChannel"); err != nil {
		return err
	}
	if _, ok := g.channels[channelID]; !ok {
		return ctfbot.Errorf(ctfbot.ENOTFOUND, "Unknown channel.")
	}
	delete(g.channels, channelID)
	return nil
}

func (g *fakeGateway) PublishChannel(ctx context.Context, guildID, channelID snowflake.ID) error {
	if err := g.call("PublishChannel"); err != nil {
		return err
	}
	if _, ok := g.channels[channelID]; !ok {
		return ctfbot.Errorf(ctfbot.ENOTFOUND, "Unknown channel.")
	}
	g.public[channelID] = true
	return nil
}

func (g *fakeGateway) FindCategory(ctx context.Context, guildID snowflake.ID, names []string) (snowflake.ID, error) {
	if err := g.call("FindCategory"); err != nil {
		return 0, err
	}
	for id, category := range g.categories {
		for _, name := range names {
			if strings.EqualFold(category, name) {
				return id, nil
			}
		}
	}
	return 0, ctfbot.Errorf(ctfbot.ENOTFOUND, "No category.")
}

func (g *fakeGateway) CreateCategory(ctx context.Context, guildID snowflake.ID, name string) (snowflake.ID, error) {
	if err := g.call("CreateCategory"); err != nil {
		return 0, err
	}
	id := g.id()
	g.categories[id] = name
	return id, nil
}

func (g *fakeGateway) MoveChannel(ctx context.Context, channelID, categoryID snowflake.ID) error {
	if err := g.call("MoveChannel"); err != nil {
		return err
	}
	g.parents[channelID] = categoryID
	return nil
}

func (g *fakeGateway) SendMessage(ctx context.Context, channelID snowflake.ID, msg *ctfbot.Message) (snowflake.ID, error) {
	if err := g.call("SendMessage"); err != nil {
		return 0, err
	}
	g.messages[channelID] = append(g.messages[channelID], msg)
	return g.id(), nil
}

func (g *fakeGateway) AddReaction(ctx context.Context, channelID, messageID snowflake.ID, emoji string) error {
	if err := g.call("AddReaction"); err != nil {
		return err
	}
	g.reactions[messageID] = emoji
	return nil
}

func (g *fakeGateway) SendDirectMessage(ctx context.Context, userID snowflake.ID, content string) error {
	if err := g.call("SendDirectMessage"); err != nil {
		return err
	}
	g.dms[userID] = append(g.dms[userID], content)
	return nil
}

// count returns how many times method was called.
func (g *fakeGateway) count(method string) int {
	var n int
	for _, call := range g.calls {
		if call == method {
			n++
		}
	}
	return n
}
