package ctftime

import (
	"strings"
	"time"
)

// Event is a single CTF as returned by the /events endpoint.
type Event struct {
	ID    int    `json:"id"`
	CTFID int    `json:"ctf_id"`
	Title string `json:"title"`

	Start    time.Time `json:"start"`
	Finish   time.Time `json:"finish"`
	Duration Duration  `json:"duration"`

	Organizers   []Team  `json:"organizers"`
	Format       string  `json:"format"`
	FormatID     int     `json:"format_id"`
	OnSite       bool    `json:"onsite"`
	Location     string  `json:"location"`
	Restrictions string  `json:"restrictions"`
	Weight       float64 `json:"weight"`
	Participants int     `json:"participants"`

	Description string `json:"description"`
	URL         string `json:"url"`
	CTFTimeURL  string `json:"ctftime_url"`
	Logo        string `json:"logo"`
	LiveFeed    string `json:"live_feed"`

	IsVotableNow  bool `json:"is_votable_now"`
	PublicVotable bool `json:"public_votable"`
}

// OrganizerNames returns the organizer team names joined by commas.
func (e *Event) OrganizerNames() string {
	names := make([]string, 0, len(e.Organizers))
	for _, team := range e.Organizers {
		names = append(names, team.Name)
	}
	return strings.Join(names, ", ")
}

// Length is the time between start and finish. CTFtime's own duration field
// is rounded and often stale, so it is only used when the bounds are unset.
func (e *Event) Length() time.Duration {
	if e.Start.IsZero() || e.Finish.IsZero() || e.Finish.Before(e.Start) {
		return e.Duration.Std()
	}
	return e.Finish.Sub(e.Start)
}

// Duration is the coarse event length reported by CTFtime.
type Duration struct {
	Hours int `json:"hours"`
	Days  int `json:"days"`
}

// Std converts d to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d.Days)*24*time.Hour + time.Duration(d.Hours)*time.Hour
}

type Team struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Country  string   `json:"country"`
	Academic bool     `json:"academic"`
	Aliases  []string `json:"aliases"`
}

type EventFilter struct {
	Start  *time.Time
	Finish *time.Time

	Limit int
}

// Upcoming returns a filter for at most limit events starting in the next
// weeks weeks from now.
func Upcoming(now time.Time, weeks, limit int) EventFilter {
	finish := now.AddDate(0, 0, 7*weeks)
	return EventFilter{
		Start:  &now,
		Finish: &finish,
		Limit:  limit,
	}
}
