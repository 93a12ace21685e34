package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mailbatch/internal/app"
	"mailbatch/internal/config"
)

const usage = `usage: mailbatch [-config path] <command> [args]

commands:
  daemon          run the scheduler until SIGTERM (default)
  start           validate the settings and schedule the job
  stop            unschedule the job and clear the cursor
  run             run a single invocation now
  check-quota     log the remaining send quota
  init-settings   seed the required settings with placeholders
  status          print job state, cursor, totals and quota
  set KEY VALUE   write one job setting
`

var runFn = run

var stdout io.Writer = os.Stdout

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runFn(ctx, os.Args[1:]); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mailbatch", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", config.DefaultPath, "path to the yaml configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.NewFromYaml(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogger(cfg.GetLogLevel(), cfg.GetLogFormat())

	runner, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			slog.Error(fmt.Sprintf("failed to release resources: %v", err))
		}
	}()

	command := "daemon"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}
	return execute(ctx, runner, command, fs.Args())
}

func execute(ctx context.Context, runner *app.App, command string, args []string) error {
	switch command {
	case "daemon":
		runner.Run(ctx)
		return nil
	case "start":
		if err := runner.StartJob(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "job scheduled")
		return nil
	case "stop":
		if err := runner.StopJob(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "job stopped")
		return nil
	case "run":
		outcome, err := runner.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "outcome: %s\n", outcome)
		return nil
	case "check-quota":
		remaining, err := runner.CheckQuota(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "remaining quota: %d\n", remaining)
		return nil
	case "init-settings":
		seeded, err := runner.InitSettings(ctx)
		if err != nil {
			return err
		}
		for _, key := range seeded {
			fmt.Fprintf(stdout, "seeded %s\n", key)
		}
		return nil
	case "status":
		status, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(stdout, status)
		return nil
	case "set":
		if len(args) != 3 {
			return errors.New("usage: mailbatch set KEY VALUE")
		}
		return runner.Set(ctx, args[1], args[2])
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func printStatus(w io.Writer, status app.Status) {
	fmt.Fprintf(w, "state: %s\n", status.State())
	fmt.Fprintf(w, "scheduled: %t\n", status.Scheduled)
	if status.HasCursor {
		fmt.Fprintf(w, "cursor: %d\n", status.Cursor)
	} else {
		fmt.Fprintln(w, "cursor: -")
	}
	fmt.Fprintf(w, "rows: %d\n", status.Stats.Rows)
	fmt.Fprintf(w, "eligible: %d\n", status.Stats.Eligible)
	fmt.Fprintf(w, "sent: %d\n", status.Stats.Sent)
	fmt.Fprintf(w, "pending: %d\n", status.Stats.Pending)
	fmt.Fprintf(w, "remaining quota: %d\n", status.Remaining)
}

func setupLogger(level string, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
