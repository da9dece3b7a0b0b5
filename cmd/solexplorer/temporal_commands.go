package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/brojonat/solexplorer/service/temporal"
	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
)

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:    "describe-schedule",
		Usage:   "Describe the cache warm schedule",
		Aliases: []string{"desc"},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := context.Background()
			handle := tc.SDKClient().ScheduleClient().GetHandle(ctx, temporal.CacheWarmScheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Schedule ID:    %s\n", temporal.CacheWarmScheduleID)
			fmt.Fprintf(w, "State Note:     %s\n", desc.Schedule.State.Note)
			fmt.Fprintf(w, "Paused:         %v\n", desc.Schedule.State.Paused)

			if wa, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				fmt.Fprintf(w, "\nWorkflow:\n")
				fmt.Fprintf(w, "  Workflow:     %v\n", wa.Workflow)
				fmt.Fprintf(w, "  Task Queue:   %s\n", wa.TaskQueue)
			}

			for i, interval := range desc.Schedule.Spec.Intervals {
				fmt.Fprintf(w, "  Interval %d:   Every %v\n", i+1, interval.Every)
			}

			fmt.Fprintf(w, "\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if n := len(desc.Info.RecentActions); n > 0 {
				fmt.Fprintf(w, "Last Action:    %s\n", desc.Info.RecentActions[n-1].ActualTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func warmInputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Blocks per page",
			Value: 50,
		},
		&cli.IntFlag{
			Name:  "pages",
			Usage: "Pages to warm, starting at the head",
			Value: 1,
		},
	}
}

func upsertScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "upsert-schedule",
		Usage: "Create or update the cache warm schedule",
		Flags: append(warmInputFlags(), &cli.DurationFlag{
			Name:  "interval",
			Usage: "How often the cache is warmed",
			Value: 30 * time.Second,
		}),
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			input := temporal.WarmCacheInput{Limit: c.Int("limit"), Pages: c.Int("pages")}
			if err := upsertSchedule(context.Background(), tc, c.Duration("interval"), input); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule upserted: %s (every %v, %d x %d blocks)\n",
				temporal.CacheWarmScheduleID, c.Duration("interval"), input.Pages, input.Limit)
			return nil
		},
	}
}

func upsertSchedule(ctx context.Context, s temporal.Scheduler, interval time.Duration, input temporal.WarmCacheInput) error {
	if interval < time.Second {
		return fmt.Errorf("interval must be at least 1s, got %v", interval)
	}
	if input.Limit < 1 || input.Pages < 1 {
		return fmt.Errorf("limit and pages must be at least 1")
	}
	if err := s.UpsertCacheWarmSchedule(ctx, interval, input); err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "pause-schedule",
		Usage: "Pause the cache warm schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is paused",
				Value: "Paused via solexplorer CLI",
			},
		},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := context.Background()
			handle := tc.SDKClient().ScheduleClient().GetHandle(ctx, temporal.CacheWarmScheduleID)
			if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: c.String("note")}); err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule paused: %s\n", temporal.CacheWarmScheduleID)
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "resume-schedule",
		Usage: "Resume the paused cache warm schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is resumed",
				Value: "Resumed via solexplorer CLI",
			},
		},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			ctx := context.Background()
			handle := tc.SDKClient().ScheduleClient().GetHandle(ctx, temporal.CacheWarmScheduleID)
			if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: c.String("note")}); err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule resumed: %s\n", temporal.CacheWarmScheduleID)
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete-schedule",
		Usage: "Delete the cache warm schedule",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("force") && !confirm(c.App.Reader, c.App.Writer,
				fmt.Sprintf("Are you sure you want to delete schedule %s? (yes/no): ", temporal.CacheWarmScheduleID)) {
				fmt.Fprintln(c.App.Writer, "Cancelled")
				return nil
			}

			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteCacheWarmSchedule(context.Background()); err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule deleted: %s\n", temporal.CacheWarmScheduleID)
			return nil
		},
	}
}

func warmNowCommand() *cli.Command {
	return &cli.Command{
		Name:  "warm-now",
		Usage: "Run one cache warm outside the schedule and wait for it",
		Flags: warmInputFlags(),
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			result, err := tc.WarmNow(c.Context, temporal.WarmCacheInput{
				Limit: c.Int("limit"),
				Pages: c.Int("pages"),
			})
			if err != nil {
				return err
			}

			return render(c, result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Warmed %d blocks over %d pages\n", result.Blocks, result.Pages)
				fmt.Fprintf(w, "  Head:    %d\n", result.HeadSlot)
				fmt.Fprintf(w, "  Slots:   %d..%d\n", result.OldestSlot, result.NewestSlot)
				fmt.Fprintf(w, "  At:      %s\n", result.WarmedAt.Format(time.RFC3339))
			})
		},
	}
}

// confirm prompts on w and reports whether the answer read from r is "yes".
func confirm(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprint(w, prompt)
	var response string
	fmt.Fscanln(r, &response)
	return response == "yes"
}

// getTemporalClient connects to Temporal using the global flags.
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		logger,
	)
}
