package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	natspkg "github.com/brojonat/solexplorer/service/nats"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// errStreamDone ends a stream once --count events have been printed.
var errStreamDone = errors.New("stream done")

func streamCommands() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Server-Sent Events (SSE) streaming commands",
		Subcommands: []*cli.Command{
			streamHeadCommand(),
		},
	}
}

func streamHeadCommand() *cli.Command {
	return &cli.Command{
		Name:  "head",
		Usage: "Follow the chain head via SSE (HTTP)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter an event must satisfy to be printed (can be specified multiple times, all must match)",
			},
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Exit after printing this many events (0 means forever)",
			},
		},
		Action: func(c *cli.Context) error {
			filters, err := compileFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}
			jsonOutput := c.Bool("json")

			// Create context that cancels on interrupt
			ctx, cancel := signalContext(c.Context)
			defer cancel()

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Connected to %s, following head... (Ctrl+C to stop)\n\n", c.String("server-url"))
			}

			printed := 0
			err = newClient(c).StreamHead(ctx, func(e natspkg.HeadEvent) error {
				if !matchesAll(filters, e) {
					return nil
				}
				if err := printHead(c.App.Writer, e, jsonOutput); err != nil {
					return err
				}
				printed++
				if n := c.Int("count"); n > 0 && printed >= n {
					return errStreamDone
				}
				return nil
			})
			if errors.Is(err, errStreamDone) {
				return nil
			}
			return err
		},
	}
}

func compileFilters(filters []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		code, err := compileJQ(filter)
		if err != nil {
			return nil, err
		}
		codes[i] = code
	}
	return codes, nil
}

func printHead(w io.Writer, e natspkg.HeadEvent, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal head event: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	line := fmt.Sprintf("slot %d  at %s", e.Slot, e.Timestamp.Format(time.RFC3339))
	if e.Skipped > 0 {
		line += fmt.Sprintf("  (+%d skipped)", e.Skipped)
	}
	fmt.Fprintln(w, line)
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
