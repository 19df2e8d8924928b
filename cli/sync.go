// ABOUTME: Google auth and sync CLI commands
// ABOUTME: OAuth loopback setup, one-shot sync, daemon mode, calendar toggles
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"golang.org/x/oauth2"

	"github.com/busybee-app/busybee/sync"
)

// AuthInitCommand runs the OAuth loopback flow and stores the token.
func AuthInitCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()
	config := sync.NewOAuthConfig()
	if config.ClientID == "" || config.ClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}

	// Local server for the OAuth callback
	callbackChan := make(chan *oauth2.Token)
	errChan := make(chan error)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			return
		}

		token, err := config.Exchange(ctx, code)
		if err != nil {
			errChan <- fmt.Errorf("failed to exchange code: %w", err)
			return
		}

		callbackChan <- token
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	authURL := config.AuthCodeURL("state", oauth2.AccessTypeOffline)

	fmt.Println("Opening browser for Google OAuth...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)

	_ = openBrowser(authURL)

	select {
	case token := <-callbackChan:
		_ = server.Shutdown(ctx)

		store := sync.NewTokenStore(config, sync.TokenPath())
		if err := store.Save(token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Printf("\n✓ Authenticated successfully\n")
		fmt.Printf("✓ Tokens saved to %s\n\n", sync.TokenPath())
		fmt.Println("Ready to sync! Run 'busybee sync run --user <id>' to pull events.")
		return nil

	case err := <-errChan:
		_ = server.Shutdown(ctx)
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
}

// AuthClearCommand removes the stored token, unlinking the Google account.
func AuthClearCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	_ = fs.Parse(args)

	store := sync.NewTokenStore(sync.NewOAuthConfig(), sync.TokenPath())
	if err := store.Clear(); err != nil {
		return err
	}

	fmt.Println("✓ Google account unlinked")
	return nil
}

// SyncRunCommand performs one immediate sync for an account.
func SyncRunCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	engine, err := buildEngine(ctx, database, profile.ID, logger)
	if err != nil {
		return err
	}
	if err := engine.SyncExternalEvents(ctx, nil); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}

	fmt.Printf("✓ Sync complete: %d events, %d calendars\n",
		len(engine.Events()), len(engine.Calendars()))
	return nil
}

// SyncDaemonCommand syncs on a fixed interval until interrupted. SIGINT or
// SIGTERM cancels the schedule; a sync already in flight finishes first.
func SyncDaemonCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	interval := fs.Duration("interval", sync.DefaultSyncInterval, "Sync interval")
	_ = fs.Parse(args)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	engine, err := buildEngine(ctx, database, profile.ID, logger)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	fmt.Printf("Syncing %s every %s (Ctrl+C to stop)\n", profile.Label(), *interval)
	engine.Run(runCtx, *interval)
	return nil
}

// ListCalendarsCommand lists the account's known calendar sources.
func ListCalendarsCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("list-calendars", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	if len(profile.Calendars) == 0 {
		fmt.Println("No calendars known yet. Run 'busybee sync run' after 'busybee auth init'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSELECTED\tPRIMARY")
	for _, cal := range profile.Calendars {
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\n", cal.ID, cal.Name, cal.Selected, cal.Primary)
	}
	return w.Flush()
}

// ToggleCalendarCommand flips a calendar's subscription and resyncs.
func ToggleCalendarCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("toggle-calendar", flag.ExitOnError)
	userID := fs.String("user", "", "Account ID (required)")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("calendar ID is required")
	}
	calendarID := fs.Arg(0)

	ctx := context.Background()
	profile, err := requireProfile(ctx, database, *userID)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	engine, err := buildEngine(ctx, database, profile.ID, logger)
	if err != nil {
		return err
	}
	if err := engine.Load(ctx); err != nil {
		return err
	}
	if err := engine.ToggleCalendarSource(ctx, calendarID); err != nil {
		return err
	}

	for _, cal := range engine.Calendars() {
		if cal.ID == calendarID {
			state := "off"
			if cal.Selected {
				state = "on"
			}
			fmt.Printf("✓ Calendar %s is now %s\n", cal.Name, state)
			break
		}
	}
	return nil
}

// openBrowser attempts to open URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	command := exec.Command(cmd, args...)
	return command.Start()
}
