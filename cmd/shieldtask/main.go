// Command shieldtask classifies one inbound SMS outside the running app and
// hands a phishing verdict to it over NATS. It always exits 0: a failed run
// is logged and dropped.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/earlfranciss/swiftshield/internal/backend"
	"github.com/earlfranciss/swiftshield/internal/bridge"
	"github.com/earlfranciss/swiftshield/internal/credential"
	"github.com/earlfranciss/swiftshield/internal/logging"
	"github.com/earlfranciss/swiftshield/internal/model"
	"github.com/earlfranciss/swiftshield/internal/task"
)

// maxPayload caps what is read from stdin.
const maxPayload = 1 << 20

var errNoBridge = errors.New("no nats url configured, cannot reach the app")

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the config file")
	payload := flag.String("payload", "", "SMS payload as JSON; read from stdin when empty")
	flag.Parse()

	run(*configPath, *payload)
}

func run(configPath, payload string) {
	// stderr until the configured log file is known.
	logger, _, _ := logging.New(logging.Options{})

	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		logger.Error("loading config", "err", err)
		return
	}

	fileLogger, closer, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		logger.Warn("log file unavailable, logging to stderr", "err", err)
	} else {
		defer closer.Close()
		logger = fileLogger
	}
	logger = logger.With("process", "shieldtask")

	if err := process(cfg, payload, logger); err != nil {
		logger.Error("sms task dropped", "err", err)
	}
}

func process(cfg *model.AppConfig, payload string, logger *log.Logger) error {
	data := []byte(payload)
	if payload == "" {
		var err error
		data, err = io.ReadAll(io.LimitReader(os.Stdin, maxPayload))
		if err != nil {
			return err
		}
	}

	if cfg.Bridge.NATSURL == "" {
		return errNoBridge
	}

	// No metrics endpoint lives in this short-lived process, so drops are
	// only logged.
	b, err := bridge.DialNATS(cfg.Bridge.NATSURL, "shieldtask", nil, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	token := credential.Lookup(credential.KeyBackendToken)
	timeout := time.Duration(cfg.Backend.ClassifyTimeoutSec) * time.Second
	api := backend.NewClient(cfg.Backend.BaseURL, token, timeout)

	task.NewRunner(api, b, timeout, nil, logger).Run(context.Background(), data)
	return nil
}
