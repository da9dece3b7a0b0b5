package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/solexplorer/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

// keyStore is the subset of *db.Store the key commands use.
type keyStore interface {
	ApplySchema(ctx context.Context) error
	CreateAPIKey(ctx context.Context, params db.CreateAPIKeyParams) (*db.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*db.APIKey, error)
	DeactivateAPIKey(ctx context.Context, id string) error
}

// openStore is swapped out in tests.
var openStore = func(c *cli.Context) (keyStore, func(), error) {
	databaseURL := c.String("database-url")
	if databaseURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db.NewStore(pool, nil), pool.Close, nil
}

func dbCommands() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "API key database commands",
		Subcommands: []*cli.Command{
			migrateCommand(),
			{
				Name:  "keys",
				Usage: "Manage API keys",
				Subcommands: []*cli.Command{
					createKeyCommand(),
					listKeysCommand(),
					revokeKeyCommand(),
				},
			},
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the api_keys table if it does not exist",
		Action: func(c *cli.Context) error {
			store, closer, err := openStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.ApplySchema(c.Context); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema applied")
			return nil
		},
	}
}

func createKeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Issue a new API key",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user-id",
				Usage:    "Owner's user UUID",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "name",
				Usage:    "Human-readable key name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "plan",
				Usage: "Plan name",
				Value: "free",
			},
			&cli.IntFlag{
				Name:  "rate-limit",
				Usage: "Requests per second (0 means unlimited)",
				Value: 10,
			},
		},
		Action: func(c *cli.Context) error {
			if c.Int("rate-limit") < 0 {
				return fmt.Errorf("rate-limit cannot be negative")
			}

			store, closer, err := openStore(c)
			if err != nil {
				return err
			}
			defer closer()

			key, err := store.CreateAPIKey(c.Context, db.CreateAPIKeyParams{
				UserID:    c.String("user-id"),
				Name:      c.String("name"),
				Plan:      c.String("plan"),
				RateLimit: c.Int("rate-limit"),
			})
			if err != nil {
				return err
			}

			return render(c, key, func(w io.Writer) {
				fmt.Fprintf(w, "✓ API key created\n")
				fmt.Fprintf(w, "  ID:         %s\n", key.ID)
				fmt.Fprintf(w, "  Key:        %s\n", key.Key)
				fmt.Fprintf(w, "  Plan:       %s\n", key.Plan)
				fmt.Fprintf(w, "  Rate Limit: %d/s\n", key.RateLimit)
			})
		},
	}
}

func listKeysCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List API keys",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "active",
				Usage: "Only show active keys",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := openStore(c)
			if err != nil {
				return err
			}
			defer closer()

			keys, err := store.ListAPIKeys(c.Context)
			if err != nil {
				return err
			}

			if c.Bool("active") {
				filtered := make([]*db.APIKey, 0, len(keys))
				for _, k := range keys {
					if k.Active {
						filtered = append(filtered, k)
					}
				}
				keys = filtered
			}

			return render(c, keys, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPLAN\tRATE\tUSED\tACTIVE\tLAST USED")
				for _, k := range keys {
					lastUsed := "never"
					if k.LastUsedAt != nil {
						lastUsed = k.LastUsedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%v\t%s\n",
						k.ID, k.Name, k.Plan, k.RateLimit, k.RequestsUsed, k.Active, lastUsed)
				}
				tw.Flush()
				fmt.Fprintf(w, "\nTotal: %d keys\n", len(keys))
			})
		},
	}
}

func revokeKeyCommand() *cli.Command {
	return &cli.Command{
		Name:      "revoke",
		Usage:     "Deactivate an API key",
		ArgsUsage: "<key-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: key ID")
			}
			id := c.Args().First()

			store, closer, err := openStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.DeactivateAPIKey(c.Context, id); err != nil {
				if errors.Is(err, db.ErrAPIKeyNotFound) {
					return fmt.Errorf("api key %s not found", id)
				}
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ API key revoked: %s\n", id)
			return nil
		},
	}
}
