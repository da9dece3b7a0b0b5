package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "solexplorer",
		Usage: "Solana block explorer API CLI",
		Description: `A command-line tool for querying and operating the solexplorer service.

Use this CLI to browse blocks, transactions, addresses and tokens through the
HTTP API, follow the chain head, and manage the cache warm schedule.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Explorer API commands
			blocksCommands(),
			transactionsCommands(),
			addressCommands(),
			tokenCommand(),
			statsCommand(),
			searchCommand(),
			// Head streaming commands
			streamCommands(),
			// Temporal inspection and management commands
			{
				Name:  "temporal",
				Usage: "Cache warm schedule management commands",
				Subcommands: []*cli.Command{
					describeScheduleCommand(),
					upsertScheduleCommand(),
					pauseScheduleCommand(),
					resumeScheduleCommand(),
					deleteScheduleCommand(),
					warmNowCommand(),
				},
			},
			// NATS head stream commands
			{
				Name:  "nats",
				Usage: "NATS head stream commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// API key database commands
			dbCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: globalFlags(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server-url",
			Aliases: []string{"s"},
			Usage:   "Explorer server URL",
			EnvVars: []string{"SERVER_URL"},
			Value:   "http://localhost:8080",
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API key sent as X-API-Key",
			EnvVars: []string{"SOLEXPLORER_API_KEY"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "temporal-host",
			Usage:   "Temporal server address",
			EnvVars: []string{"TEMPORAL_HOST"},
			Value:   "localhost:7233",
		},
		&cli.StringFlag{
			Name:    "temporal-namespace",
			Usage:   "Temporal namespace",
			EnvVars: []string{"TEMPORAL_NAMESPACE"},
			Value:   "default",
		},
		&cli.StringFlag{
			Name:    "temporal-task-queue",
			Usage:   "Temporal task queue of the cache warm worker",
			EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
			Value:   "solexplorer-cache-warmer",
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Usage:   "NATS server URL",
			EnvVars: []string{"NATS_URL"},
			Value:   "nats://localhost:4222",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Output in JSON format",
		},
		&cli.StringFlag{
			Name:  "jq",
			Usage: "jq expression applied to the JSON output",
		},
	}
}
