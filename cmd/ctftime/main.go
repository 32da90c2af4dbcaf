// Command ctftime prints the upcoming CTFtime events, the same window the
// bot posts in its digest.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/flagbearer/ctfbot/ctftime"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	f := flag.NewFlagSet("ctftime", flag.ContinueOnError)
	weeks := f.Int("weeks", 2, "how many weeks ahead to look")
	limit := f.Int("limit", 20, "maximum number of events")
	baseURL := f.String("base-url", ctftime.DefaultBaseURL, "CTFtime API root")
	if err := f.Parse(args); err != nil {
		return err
	}

	c := ctftime.NewClient()
	c.BaseURL = *baseURL

	events, err := c.FindEvents(ctx, ctftime.Upcoming(time.Now(), *weeks, *limit))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "START\tTITLE\tWEIGHT\tURL")
	for _, event := range events {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", humanize.Time(event.Start), event.Title, event.Weight, event.CTFTimeURL)
	}
	return w.Flush()
}
