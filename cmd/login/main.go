package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"thread_harvester/internal/app"
	"thread_harvester/internal/browser"
	"thread_harvester/internal/config"
	"thread_harvester/internal/session"
)

var errAborted = errors.New("aborted by operator")

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	force := flag.Bool("force", false, "overwrite an existing session without asking")
	flag.Parse()

	logger := app.SetupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = app.SetupLogger(cfg.LogLevel)

	if err := run(cfg, *force, logger); err != nil {
		if errors.Is(err, errAborted) {
			logger.Info("session left unchanged", "path", cfg.Browser.SessionFile)
			return
		}
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, force bool, logger *slog.Logger) error {
	path := cfg.Browser.SessionFile
	stdin := bufio.NewReader(os.Stdin)

	if session.Exists(path) && !force {
		fmt.Printf("%s already exists. Overwrite it? [y/N] ", path)
		answer, err := stdin.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read answer: %w", err)
		}
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			return errAborted
		}
	}

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	opts := app.BrowserOptions(cfg)
	opts.Headless = false

	page, err := browser.Open(ctx, opts, nil, logger.With("component", "browser"))
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.Navigate(ctx, cfg.Forum.LoginURL); err != nil {
		return err
	}

	fmt.Println("Log in using the browser window, then press Enter here to save the session.")
	if err := waitForEnter(ctx, stdin); err != nil {
		return err
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return err
	}
	if err := session.Save(path, &session.State{Cookies: cookies}); err != nil {
		return err
	}

	logger.Info("session saved", "path", path, "cookies", len(cookies))
	return nil
}

func waitForEnter(ctx context.Context, r *bufio.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := r.ReadString('\n')
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read stdin: %w", err)
		}
		return nil
	}
}
