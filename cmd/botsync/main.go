// botsync - resumable chatbot conversation client
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"botsync/internal/botapi"
	"botsync/internal/config"
	"botsync/internal/engine"
	"botsync/internal/store"

	"github.com/joho/godotenv"
)

func main() {
	// Chat output owns stdout; diagnostics go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	st, err := store.NewSQLite(cfg.DBPath, cfg.SessionID)
	if err != nil {
		slog.Error("Failed to initialize state store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close state store", "error", closeErr)
		}
	}()

	if err := st.Ping(context.Background()); err != nil {
		slog.Error("State store health check failed", "error", err)
		os.Exit(1)
	}

	api := botapi.New(botapi.Config{
		BaseURL:        cfg.APIBaseURL,
		RequestTimeout: 30 * time.Second,
	}, logger)

	display := &consoleDisplay{out: os.Stdout}
	finished := make(chan struct{}, 1)

	engCfg := engine.DefaultConfig()
	engCfg.TreatmentGroup = cfg.TreatmentGroup
	engCfg.Retry.Interval = cfg.RetryInterval
	engCfg.OnFinished = func() {
		select {
		case finished <- struct{}{}:
		default:
		}
	}

	eng := engine.New(st, api, display, engCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Init(ctx); err != nil {
		slog.Error("Failed to initialize conversation", "error", err)
		os.Exit(1)
	}
	if err := eng.OpenInterface(ctx); err != nil {
		slog.Error("Failed to open interface", "error", err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-finished:
			fmt.Fprintln(os.Stdout, "-- conversation finished --")
			return
		case <-ctx.Done():
			return
		default:
		}

		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		clientMsgID, err := eng.ComposeUserMessage(ctx, text)
		if err != nil {
			slog.Error("Failed to record message", "error", err)
			continue
		}
		if err := eng.SendUserMessage(ctx, text, clientMsgID); err != nil {
			slog.Error("Failed to send message", "error", err)
		}
	}

	if err := scanner.Err(); err != nil {
		slog.Error("Input read failed", "error", err)
		os.Exit(1)
	}
}

// consoleDisplay is the minimal display collaborator for terminal use.
type consoleDisplay struct {
	out io.Writer
}

func (d *consoleDisplay) DisplayMessage(text, from string) {
	fmt.Fprintf(d.out, "[%s] %s\n", from, text)
}

func (d *consoleDisplay) SetTyping(visible bool) {
	if visible {
		fmt.Fprintln(d.out, "... agent is typing")
	}
}
