// Command swiftshield runs the phishing monitor with its terminal UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/earlfranciss/swiftshield/internal/app"
	"github.com/earlfranciss/swiftshield/internal/logging"
	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/ui/setup"
)

// launchTimeout bounds restoring the stored intent at startup.
const launchTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the config file")
	runSetup := flag.Bool("setup", false, "run the setup form and exit")
	flag.Parse()

	if err := run(*configPath, *runSetup); err != nil {
		fmt.Fprintln(os.Stderr, "swiftshield:", err)
		os.Exit(1)
	}
}

func run(configPath string, runSetup bool) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if runSetup || !configExists(configPath) {
		saved, err := setupConfig(configPath, cfg)
		if err != nil || !saved {
			return err
		}
		if runSetup {
			return nil
		}
		if cfg, err = model.LoadConfig(configPath); err != nil {
			return err
		}
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := context.Background()
	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Error("shutting down", "err", err)
		}
	}()

	launchCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	err = services.Launch(launchCtx)
	cancel()
	if err != nil {
		// The UI still opens so the user can see and fix the state.
		logger.Error("restoring monitoring", "err", err)
	}

	root := app.New(services.Orchestrator, services.Router, services.Toasts, services.Focus)
	p := tea.NewProgram(root, tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running ui: %w", err)
	}
	return nil
}

// setupConfig runs the setup form and reports whether it saved.
func setupConfig(path string, cfg *model.AppConfig) (bool, error) {
	final, err := tea.NewProgram(setup.New(path, cfg, nil)).Run()
	if err != nil {
		return false, fmt.Errorf("running setup: %w", err)
	}
	m, ok := final.(setup.Model)
	if !ok {
		return false, nil
	}
	return m.Saved(), m.Err()
}

func configExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
