package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"text/tabwriter"
	"time"

	"dealwatch/internal/engine"
	"dealwatch/internal/service"
	"dealwatch/internal/storage"
	"dealwatch/internal/watchlist"
)

// Watch adds a product to the watch set and prints the initial baseline.
func (a *App) Watch(ctx context.Context, key, nameHint string) error {
	svc := a.newCommandService()

	entry, err := svc.Watch(ctx, key, nameHint, currentUsername())
	if err != nil {
		switch {
		case errors.Is(err, watchlist.ErrAlreadyWatched):
			return fmt.Errorf("product %s is already on the watchlist", key)
		case errors.Is(err, service.ErrNotFound):
			return fmt.Errorf("product %s was not found at the source", key)
		}
		return err
	}

	fmt.Fprintf(os.Stdout, "Now watching: %s (%s)\n", entry.Name, key)
	printEntryPrices(entry)
	fmt.Fprintln(os.Stdout, entry.URL)
	return nil
}

// Unwatch removes a product from the watch set.
func (a *App) Unwatch(ctx context.Context, key string) error {
	svc := a.newCommandService()

	entry, err := svc.Unwatch(ctx, key)
	if err != nil {
		if errors.Is(err, watchlist.ErrNotWatched) {
			return fmt.Errorf("product %s is not on the watchlist", key)
		}
		return err
	}

	fmt.Fprintf(os.Stdout, "%s removed from the watchlist\n", entry.Name)
	return nil
}

// List prints all tracked products with their last known baselines.
func (a *App) List(ctx context.Context) error {
	svc := a.newCommandService()

	list, err := svc.List(ctx)
	if err != nil {
		return err
	}
	if list.Len() == 0 {
		fmt.Fprintln(os.Stdout, "the watchlist is empty")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Key\tName\tRetail\tKeyshops\tCurrency\tAdded by")

	for _, key := range list.Keys() {
		entry := list.Games[key]
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			key,
			entry.Name,
			priceOrDash(entry, watchlist.ChannelRetail),
			priceOrDash(entry, watchlist.ChannelKeyshops),
			entry.Currency,
			entry.AddedBy,
		)
	}

	writer.Flush()
	return nil
}

// Price looks a product up without touching the watch set.
func (a *App) Price(ctx context.Context, key string) error {
	svc := a.newCommandService()

	rec, err := svc.CheckPrice(ctx, key)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return fmt.Errorf("product %s was not found at the source", key)
		}
		return err
	}

	title := rec.Title
	if title == "" {
		title = key
	}
	fmt.Fprintf(os.Stdout, "%s\n", title)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Channel\tCurrent\tHistorical low")
	for _, channel := range []string{watchlist.ChannelRetail, watchlist.ChannelKeyshops} {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			channel,
			valueOrDash(rec.Current[channel], rec.Currency),
			valueOrDash(rec.Historical[channel], rec.Currency),
		)
	}
	writer.Flush()

	if rec.URL != "" {
		fmt.Fprintln(os.Stdout, rec.URL)
	}
	return nil
}

// Alerts prunes and prints the alert audit log.
func (a *App) Alerts(ctx context.Context, opts AlertsOptions) error {
	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		return errors.New("database not configured; cannot list alerts")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	return runAlerts(ctx, os.Stdout, audit, time.Now, opts)
}

func runAlerts(ctx context.Context, out io.Writer, audit storage.AlertStore, now func() time.Time, opts AlertsOptions) error {
	if opts.PruneOlderThan > 0 {
		cutoff := now().Add(-opts.PruneOlderThan)
		if err := audit.DeleteAlertsBefore(ctx, cutoff); err != nil {
			return err
		}
		fmt.Fprintf(out, "pruned alerts older than %s\n", cutoff.UTC().Format(time.RFC3339))
	}

	rows, err := audit.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "no alerts recorded")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tKey\tName\tDrops")

	for _, row := range rows {
		var drops []engine.Drop
		_ = json.Unmarshal(row.Drops, &drops)

		parts := make([]string, 0, len(drops))
		for _, drop := range drops {
			parts = append(parts, fmt.Sprintf("%s %s -> %s", drop.Channel, drop.Old, drop.New))
		}

		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.ProductKey,
			row.Name,
			strings.Join(parts, ", "),
		)
	}

	writer.Flush()
	return nil
}

// SimulateAlert pushes a fabricated drop through the configured sinks.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	name := opts.Name
	if name == "" {
		name = opts.Key
	}

	alert := engine.Alert{
		Key:      opts.Key,
		Name:     name,
		Currency: a.Config.Source.DefaultCurrency,
		Drops: []engine.Drop{
			{Channel: opts.Channel, Old: opts.Old, New: opts.New},
		},
	}

	return notifier.Notify(ctx, alert)
}

func printEntryPrices(entry *watchlist.Entry) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Channel\tCurrent\tHistorical low")
	for _, channel := range []string{watchlist.ChannelRetail, watchlist.ChannelKeyshops} {
		fmt.Fprintf(writer, "%s\t%s\t%s\n",
			channel,
			valueOrDash(entry.Prices[channel], entry.Currency),
			valueOrDash(entry.Historical[channel], entry.Currency),
		)
	}
	writer.Flush()
}

func priceOrDash(entry *watchlist.Entry, channel string) string {
	if value, ok := entry.Price(channel); ok {
		return value
	}
	return "-"
}

func valueOrDash(value, currency string) string {
	if value == "" {
		return "-"
	}
	return value + " " + currency
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return ""
}
