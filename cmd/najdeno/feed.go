package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/erazemk/najdeno/internal/db"
	"github.com/erazemk/najdeno/internal/feed"
	"github.com/erazemk/najdeno/internal/realtime"
	"github.com/erazemk/najdeno/internal/store"
)

var (
	feedFilter feed.Filter
	feedFollow bool
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print the filtered item feed",
	Long: `Print the item feed from the database, filtered and ordered the same way
as the API.

Examples:
  najdeno feed --status lost --category keys
  najdeno feed --search backpack --sort oldest
  NAJDENO_REALTIME_NATS_URL=nats://localhost:4222 najdeno feed --follow --status found`,
	Args: cobra.NoArgs,
	RunE: runFeed,
}

func init() {
	feedCmd.Flags().StringVar(&feedFilter.Status, "status", feed.StatusAll, "item status: all, lost or found")
	feedCmd.Flags().StringVar(&feedFilter.Category, "category", "", "category id")
	feedCmd.Flags().StringVar(&feedFilter.Search, "search", "", "case-insensitive text in title, description or location")
	feedCmd.Flags().StringVar(&feedFilter.SortBy, "sort", feed.SortNewest, "newest or oldest")
	feedCmd.Flags().BoolVarP(&feedFollow, "follow", "f", false, "keep printing the feed as items are posted (needs realtime.nats_url)")
}

func runFeed(cmd *cobra.Command, _ []string) error {
	if err := feedFilter.Validate(); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if !feedFollow {
		return printFeed(cmd.Context(), cmd.OutOrStdout(), database, feedFilter)
	}
	if cfg.Realtime.NATSURL == "" {
		return fmt.Errorf("--follow needs realtime.nats_url")
	}

	hub := realtime.NewHub()
	defer hub.Close()
	_, closeBridge, err := connectBridge(cfg.Realtime, hub)
	if err != nil {
		return err
	}
	defer closeBridge()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return followFeed(ctx, cmd.OutOrStdout(), database, hub, feedFilter, cfg.Realtime.SubscriberBuffer)
}

// followFeed prints the feed, then reprints it whenever a new item arrives
// on hub, until ctx is cancelled.
func followFeed(ctx context.Context, w io.Writer, database *sql.DB, hub *realtime.Hub, f feed.Filter, buffer int) error {
	items, err := store.ListItems(ctx, database, store.ListOptions{Page: -1})
	if err != nil {
		return err
	}

	state := feed.NewState()
	state.SetItems(items)
	state.SetFilter(f)

	views, cancelViews := state.Subscribe()
	defer cancelViews()
	added, cancelAdded := hub.Subscribe(buffer)
	defer cancelAdded()

	go state.Consume(ctx, added)

	if err := writeFeed(w, state.View()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case view, ok := <-views:
			if !ok {
				return nil
			}
			fmt.Fprintln(w)
			if err := writeFeed(w, view); err != nil {
				return err
			}
		}
	}
}

// printFeed writes every item passing f as a table followed by the count.
func printFeed(ctx context.Context, w io.Writer, database *sql.DB, f feed.Filter) error {
	items, err := store.ListItems(ctx, database, store.ListOptions{Page: -1})
	if err != nil {
		return err
	}
	result, err := feed.Compute(items, f)
	return writeFeed(w, feed.View{Result: result, Filter: f, Err: err})
}

// writeFeed renders a view as a table followed by the count.
func writeFeed(w io.Writer, view feed.View) error {
	if view.Err != nil {
		return view.Err
	}
	result := view.Result

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSTATUS\tCATEGORY\tTITLE\tLOCATION")
	for _, item := range result.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			item.Date.Format("2006-01-02 15:04"), item.Status, item.Category, item.Title, item.Location)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d items\n", result.Count)
	return nil
}
