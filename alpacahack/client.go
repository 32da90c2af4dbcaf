// Package alpacahack scrapes public user profiles from AlpacaHack.
package alpacahack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anaskhan96/soup"
	"github.com/flagbearer/ctfbot"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the AlpacaHack site root.
const DefaultBaseURL = "https://alpacahack.com"

// Ensure client implements interface.
var _ ctfbot.ScoreService = (*Client)(nil)

// Client fetches profile pages, at most one request per second.
type Client struct {
	c       *http.Client
	limiter *rate.Limiter

	BaseURL string
}

// NewClient returns a new instance of Client.
func NewClient() *Client {
	return &Client{
		c:       &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		BaseURL: DefaultBaseURL,
	}
}

// FindScoreSections returns every titled table on the profile of user.
func (c *Client) FindScoreSections(ctx context.Context, user string) ([]*ctfbot.ScoreSection, error) {
	doc, err := c.fetchProfile(ctx, user)
	if err != nil {
		return nil, err
	}

	sections := ParseProfile(doc)
	if len(sections) == 0 {
		return nil, ctfbot.Errorf(ctfbot.ENOTFOUND, "No data found for %s.", user)
	}
	return sections, nil
}

func (c *Client) fetchProfile(ctx context.Context, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath("users", user)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return "", ctfbot.WrapError(err, ctfbot.EGATEWAY, "AlpacaHack is unreachable.")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ctfbot.Errorf(ctfbot.ENOTFOUND, "AlpacaHack user %s not found.", user)
	} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ctfbot.Errorf(ctfbot.EGATEWAY, "AlpacaHack returned %s.", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read profile: %w", err)
	}
	return string(body), nil
}

// ParseProfile extracts the titled tables from a rendered profile page.
// Sections missing a title, a header or a body are skipped.
func ParseProfile(doc string) []*ctfbot.ScoreSection {
	root := soup.HTMLParse(doc)
	if root.Error != nil {
		return nil
	}

	container := root.Find("div", "class", "MuiContainer-root")
	if container.Error != nil {
		return nil
	}

	// The first child is the profile header.
	var sections []*ctfbot.ScoreSection
	for i, child := range elementChildren(container) {
		if i == 0 {
			continue
		}

		tbody := child.Find("tbody", "class", "MuiTableBody-root")
		thead := child.Find("thead")
		title := child.Find("p", "class", "MuiTypography-root")
		if tbody.Error != nil || thead.Error != nil || title.Error != nil {
			continue
		}

		section := &ctfbot.ScoreSection{Title: strings.TrimSpace(title.FullText())}
		if tr := thead.Find("tr"); tr.Error == nil {
			for _, th := range tr.FindAll("th") {
				section.Header = append(section.Header, strings.TrimSpace(th.FullText()))
			}
		}

		for _, tr := range tbody.FindAll("tr") {
			var row []string
			for _, td := range tr.FindAll("td") {
				row = append(row, strings.Join(leafTexts(td.Pointer), " "))
			}
			section.Rows = append(section.Rows, row)
		}

		sections = append(sections, section)
	}
	return sections
}

func elementChildren(r soup.Root) []soup.Root {
	var children []soup.Root
	for n := r.Pointer.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			children = append(children, soup.Root{Pointer: n, NodeValue: n.Data})
		}
	}
	return children
}

// leafTexts returns the trimmed text of every descendant element of n that
// has no element children, in document order. Style elements are skipped.
func leafTexts(n *html.Node) []string {
	var texts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if isLeaf(c) {
				if c.Data != "style" {
					texts = append(texts, strings.TrimSpace(text(c)))
				}
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return texts
}

func isLeaf(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return false
		}
	}
	return true
}

func text(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
