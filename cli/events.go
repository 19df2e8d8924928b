// ABOUTME: Event CLI commands
// ABOUTME: Add, list, and remove events through the reconciliation engine
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/busybee-app/busybee/models"
	"github.com/busybee-app/busybee/sync"
)

// AddEventCommand adds an event to the account's schedule. With --calendar
// and a linked Google account the event is created remotely too.
func AddEventCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("add-event", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	title := fs.String("title", "", "Event title (required)")
	description := fs.String("description", "", "Event description")
	start := fs.String("start", "", "Start time, RFC3339 or yyyy-mm-dd (required)")
	end := fs.String("end", "", "End time, RFC3339 or yyyy-mm-dd (required)")
	calendarID := fs.String("calendar", "", "Target Google calendar ID (default: manual entry)")
	_ = fs.Parse(args)

	if *title == "" {
		return fmt.Errorf("--title is required")
	}
	startAt, err := models.ParseStamp(*start)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	endAt, err := models.ParseStamp(*end)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}
	if !endAt.After(startAt) {
		return fmt.Errorf("--end must be after --start")
	}

	ctx := context.Background()
	if _, err := requireProfile(ctx, database, *userID); err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	engine, err := buildEngine(ctx, database, *userID, logger)
	if err != nil {
		return err
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}

	event, err := engine.AddEvent(ctx, sync.EventInput{
		Title:       *title,
		Description: *description,
		Start:       startAt,
		End:         endAt,
		CalendarID:  *calendarID,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Event added: %s (ID: %s)\n", event.Title, event.ID)
	fmt.Printf("  %s – %s\n", formatStamp(event.Start), formatStamp(event.End))
	if event.Source == models.SourceGoogle {
		fmt.Printf("  Calendar: %s\n", event.CalendarID)
	}
	return nil
}

// ListEventsCommand lists the account's reconciled upcoming events.
func ListEventsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("list-events", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	ctx := context.Background()
	if _, err := requireProfile(ctx, database, *userID); err != nil {
		return err
	}

	engine, err := buildEngine(ctx, database, *userID, nil)
	if err != nil {
		return err
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}

	events := engine.Events()
	if len(events) == 0 {
		fmt.Println("No upcoming events.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTART\tEND\tSOURCE")
	for _, event := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			event.ID, event.Title, formatStamp(event.Start), formatStamp(event.End), event.Source)
	}
	return w.Flush()
}

// RemoveEventCommand removes an event by id.
func RemoveEventCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("remove-event", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("event ID is required")
	}
	eventID := fs.Arg(0)

	ctx := context.Background()
	if _, err := requireProfile(ctx, database, *userID); err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	engine, err := buildEngine(ctx, database, *userID, logger)
	if err != nil {
		return err
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}

	var target *models.CalendarEvent
	for _, event := range engine.Events() {
		if event.ID == eventID {
			e := event
			target = &e
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no event found with id %s", eventID)
	}

	if err := engine.RemoveEvent(ctx, *target); err != nil {
		return err
	}

	fmt.Printf("✓ Event removed: %s\n", target.Title)
	return nil
}
