// ABOUTME: Partner link CLI commands
// ABOUTME: Join codes, connect/disconnect, free-busy status, combined view
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/busybee-app/busybee/partner"
)

// LinkCodeCommand prints the account's shareable join code, minting one if
// needed.
func LinkCodeCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("code", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	force := fs.Bool("force", false, "Regenerate even if a code already exists")
	_ = fs.Parse(args)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	code, err := newManager(database, nil).GenerateJoinCode(ctx, profile.ID, *force)
	if err != nil {
		return err
	}

	fmt.Printf("Join code for %s: %s\n", profile.Label(), code)
	fmt.Println("Share this code so a partner can run 'busybee link connect'.")
	return nil
}

// LinkConnectCommand links the account to the owner of a join code.
func LinkConnectCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return partner.ErrEmptyCode
	}
	code := fs.Arg(0)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	target, err := newManager(database, logger).Connect(ctx, profile.ID, code)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Connected to %s\n", target.Label())
	return nil
}

// LinkDisconnectCommand removes the link to a partner.
func LinkDisconnectCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("disconnect", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("partner ID is required")
	}
	partnerID := fs.Arg(0)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	if err := newManager(database, logger).Disconnect(ctx, profile.ID, partnerID); err != nil {
		return err
	}

	fmt.Printf("✓ Disconnected from %s\n", partnerID)
	return nil
}

// LinkStatusCommand shows each connected partner's free/busy status, or one
// partner's when --partner narrows the scope.
func LinkStatusCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	partnerID := fs.String("partner", "", "Show only this partner")
	_ = fs.Parse(args)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	schedules, err := newManager(database, logger).AggregatePartnerEvents(ctx, profile.ID)
	if err != nil {
		return err
	}
	if *partnerID != "" {
		schedules = partner.FilterPartner(schedules, *partnerID)
	}
	if len(schedules) == 0 {
		fmt.Println("No connected partners.")
		return nil
	}

	now := time.Now()
	for _, schedule := range schedules {
		status := partner.DeriveStatus(schedule.Events, now)
		fmt.Printf("%s: %s\n", schedule.Label, status.Message)
	}
	return nil
}

// LinkCombinedCommand prints the merged preview of the caller's and the
// partners' upcoming events.
func LinkCombinedCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("combined", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	partnerID := fs.String("partner", "", "Limit to one partner's events")
	limit := fs.Int("limit", partner.DefaultCombinedLimit, "Maximum events shown")
	_ = fs.Parse(args)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	schedules, err := newManager(database, logger).AggregatePartnerEvents(ctx, profile.ID)
	if err != nil {
		return err
	}
	if *partnerID != "" {
		schedules = partner.FilterPartner(schedules, *partnerID)
	}

	combined := partner.CombinedSchedule(profile.CalendarEvents, schedules, time.Now(), *limit)
	if len(combined) == 0 {
		fmt.Println("Nothing coming up.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTITLE\tWHOSE")
	for _, event := range combined {
		whose := "you"
		if event.Owner == partner.OwnerPartner {
			whose = event.PartnerID
			for _, schedule := range schedules {
				if schedule.PartnerID == event.PartnerID {
					whose = schedule.Label
					break
				}
			}
		}
		fmt.Fprintf(w, "%s – %s\t%s\t%s\n",
			formatStamp(event.Start), formatStamp(event.End), event.Title, whose)
	}
	return w.Flush()
}
