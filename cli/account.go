// ABOUTME: Account CLI commands
// ABOUTME: Create, show, and delete BusyBee accounts
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/busybee-app/busybee/db"
	"github.com/busybee-app/busybee/models"
)

// CreateAccountCommand creates a new account.
func CreateAccountCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	name := fs.String("name", "", "Display name")
	_ = fs.Parse(args)

	if *email == "" && *name == "" {
		return fmt.Errorf("--email or --name is required")
	}

	ctx := context.Background()
	profile := &models.UserProfile{
		Email:       *email,
		DisplayName: *name,
	}
	if err := db.NewProfileStore(database).CreateProfile(ctx, profile); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Printf("✓ Account created: %s (ID: %s)\n", profile.Label(), profile.ID)
	return nil
}

// ShowAccountCommand prints one account's profile document.
func ShowAccountCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", profile.ID)
	if profile.Email != "" {
		fmt.Fprintf(w, "Email\t%s\n", profile.Email)
	}
	if profile.DisplayName != "" {
		fmt.Fprintf(w, "Name\t%s\n", profile.DisplayName)
	}
	if profile.JoinCode != "" {
		fmt.Fprintf(w, "Join code\t%s\n", profile.JoinCode)
	}
	fmt.Fprintf(w, "Partners\t%d\n", len(profile.ConnectedWith))
	fmt.Fprintf(w, "Events\t%d\n", len(profile.CalendarEvents))
	fmt.Fprintf(w, "Calendars\t%d\n", len(profile.Calendars))
	if profile.LastSyncedAt != nil {
		fmt.Fprintf(w, "Last sync\t%s\n", formatStamp(*profile.LastSyncedAt))
	}
	return w.Flush()
}

// DeleteAccountCommand removes an account and all its data.
func DeleteAccountCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	if err := db.NewProfileStore(database).DeleteProfile(ctx, profile.ID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	fmt.Printf("✓ Account deleted: %s\n", profile.Label())
	return nil
}
