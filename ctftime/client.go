// Package ctftime is a small client for the public CTFtime API.
package ctftime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/flagbearer/ctfbot"
)

// DefaultBaseURL is the root of the CTFtime v1 API.
const DefaultBaseURL = "https://ctftime.org/api/v1/"

type Client struct {
	c *http.Client

	BaseURL string
}

func NewClient() *Client {
	return &Client{
		c:       &http.Client{Timeout: 15 * time.Second},
		BaseURL: DefaultBaseURL,
	}
}

// FindEventByID returns a single event. Returns ENOTFOUND if CTFtime does
// not know it.
func (c *Client) FindEventByID(ctx context.Context, id int) (*Event, error) {
	u, err := c.url("events", strconv.Itoa(id), "/")
	if err != nil {
		return nil, err
	}

	event := &Event{}
	if err := c.get(ctx, u, event); err != nil {
		return nil, err
	}
	return event, nil
}

// FindEvents returns the events starting within the filter's window.
func (c *Client) FindEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	u, err := c.url("events", "/")
	if err != nil {
		return nil, err
	}

	q := u.Query()

	if filter.Limit != 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	if filter.Start != nil {
		q.Set("start", strconv.FormatInt(filter.Start.Unix(), 10))
	}

	if filter.Finish != nil {
		q.Set("finish", strconv.FormatInt(filter.Finish.Unix(), 10))
	}

	u.RawQuery = q.Encode()

	events := make([]*Event, 0)
	if err := c.get(ctx, u, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) url(elem ...string) (*url.URL, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	return u.JoinPath(elem...), nil
}

func (c *Client) get(ctx context.Context, u *url.URL, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	// Workaround for CTFtime API.
	req.Header.Add("User-Agent", "curl/8.5.0")

	resp, err := c.c.Do(req)
	if err != nil {
		return ctfbot.WrapError(err, ctfbot.EGATEWAY, "CTFtime is unreachable.")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ctfbot.Errorf(ctfbot.ENOTFOUND, "Event not found.")
	} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ctfbot.Errorf(ctfbot.EGATEWAY, "CTFtime returned %s.", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode ctftime response: %w", err)
	}
	return nil
}
