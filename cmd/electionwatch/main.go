package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"ElectionWatch/internal/app"
	"ElectionWatch/internal/config"
	"ElectionWatch/internal/logging"
)

const usage = `usage: electionwatch <command> [flags]

commands:
  serve                 migrate, seed configs and run the scheduler
  once -config <id>     run one monitoring config if it is due
  alerts [-limit n]     list open alerts
  resolve -id <id>      resolve an alert
  ack -id <id>          acknowledge an alert
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if err := run(ctx, os.Args[1], os.Args[2:], cfg, logger); err != nil {
		logger.Error("electionwatch stopped", "command", os.Args[1], "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, cfg config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	configID := fs.String("config", "", "monitoring config id")
	alertID := fs.String("id", "", "alert id")
	limit := fs.Int("limit", 50, "maximum alerts to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch command {
	case "serve", "once", "alerts", "resolve", "ack":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	switch command {
	case "serve":
		return application.Serve(ctx)
	case "once":
		if *configID == "" {
			return fmt.Errorf("once: -config is required")
		}
		summary, err := application.RunOnce(ctx, *configID)
		if err != nil {
			return err
		}
		return printJSON(summary)
	case "alerts":
		alerts, err := application.ListAlerts(ctx, *limit)
		if err != nil {
			return err
		}
		return printJSON(alerts)
	case "resolve":
		if *alertID == "" {
			return fmt.Errorf("resolve: -id is required")
		}
		return application.ResolveAlert(ctx, *alertID)
	default:
		if *alertID == "" {
			return fmt.Errorf("ack: -id is required")
		}
		return application.AcknowledgeAlert(ctx, *alertID)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
