// ABOUTME: Entry point for the BusyBee shared-scheduling CLI
// ABOUTME: Routes account, event, auth, sync, and link commands
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/busybee-app/busybee/cli"
	"github.com/busybee-app/busybee/db"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/busybee/busybee.db)")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("busybee version %s\n", version)
		os.Exit(0)
	}

	// Optional .env for Google client credentials
	_ = godotenv.Load()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	finalDBPath := *dbPath
	if finalDBPath == "" {
		finalDBPath = db.DefaultPath()
	}
	database, err := db.OpenDatabase(finalDBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	switch command {
	case "account":
		runSubcommand(command, commandArgs, map[string]commandFunc{
			"create": cli.CreateAccountCommand,
			"show":   cli.ShowAccountCommand,
			"delete": cli.DeleteAccountCommand,
		}, database)

	case "events":
		runSubcommand(command, commandArgs, map[string]commandFunc{
			"add":    cli.AddEventCommand,
			"list":   cli.ListEventsCommand,
			"remove": cli.RemoveEventCommand,
		}, database)

	case "calendars":
		runSubcommand(command, commandArgs, map[string]commandFunc{
			"list":   cli.ListCalendarsCommand,
			"toggle": cli.ToggleCalendarCommand,
		}, database)

	case "auth":
		runSubcommand(command, commandArgs, map[string]commandFunc{
			"init":  cli.AuthInitCommand,
			"clear": cli.AuthClearCommand,
		}, database)

	case "sync":
		runSubcommand(command, commandArgs, map[string]commandFunc{
			"run":    cli.SyncRunCommand,
			"daemon": cli.SyncDaemonCommand,
		}, database)

	case "link":
		runSubcommand(command, commandArgs, map[string]commandFunc{
			"code":       cli.LinkCodeCommand,
			"connect":    cli.LinkConnectCommand,
			"disconnect": cli.LinkDisconnectCommand,
			"status":     cli.LinkStatusCommand,
			"combined":   cli.LinkCombinedCommand,
		}, database)

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

type commandFunc func(database *sql.DB, args []string) error

func runSubcommand(group string, args []string, commands map[string]commandFunc, database *sql.DB) {
	if len(args) == 0 {
		fmt.Printf("Error: %s requires a subcommand\n", group)
		printUsage()
		os.Exit(1)
	}

	run, ok := commands[args[0]]
	if !ok {
		fmt.Printf("Unknown %s command: %s\n\n", group, args[0])
		printUsage()
		os.Exit(1)
	}

	if err := run(database, args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Printf(`busybee v%s - Shared scheduling for busy people

USAGE:
  busybee [global flags] <command> <subcommand> [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/busybee/busybee.db)

ACCOUNT COMMANDS:
  busybee account create    Create an account
    --email <email>           Email address
    --name <name>             Display name

  busybee account show --user <id>     Show an account's profile
  busybee account delete --user <id>   Delete an account and all its data

EVENT COMMANDS:
  busybee events add        Add an event
    --user <id>               Account ID (required)
    --title <title>           Event title (required)
    --start <time>            Start, RFC3339 or yyyy-mm-dd (required)
    --end <time>              End, RFC3339 or yyyy-mm-dd (required)
    --description <text>      Description
    --calendar <id>           Create on this Google calendar instead of locally

  busybee events list --user <id>          List upcoming events
  busybee events remove --user <id> <event-id>  Remove an event

CALENDAR COMMANDS:
  busybee calendars list --user <id>             List known calendar sources
  busybee calendars toggle --user <id> <cal-id>  Flip a calendar subscription

AUTH COMMANDS:
  busybee auth init         Link a Google account (OAuth in browser)
  busybee auth clear        Unlink the Google account

SYNC COMMANDS:
  busybee sync run --user <id>       Sync external events once
  busybee sync daemon --user <id>    Sync on an interval until interrupted
    --interval <dur>                   Interval (default: 1m0s)

LINK COMMANDS:
  busybee link code --user <id>                Show (or mint) your join code
    --force                                      Regenerate the code
  busybee link connect --user <id> <code>      Connect to a partner's code
  busybee link disconnect --user <id> <partner-id>  Remove a partner link
  busybee link status --user <id>              Partners' free/busy status
    --partner <id>                               Only this partner
  busybee link combined --user <id>            Combined upcoming schedule
    --partner <id>                               Only this partner's events
    --limit <n>                                  Max events (default: 6)

EXAMPLES:
  # Create two accounts and link them
  busybee account create --name "Alice"
  busybee link code --user <alice-id>
  busybee link connect --user <bob-id> ABC23

  # Link Google and keep events fresh
  busybee auth init
  busybee sync daemon --user <alice-id>

  # See when you're both free
  busybee link combined --user <alice-id>

`, version)
}
