// Command relaylogs-agent tails the configured log sources and ships
// batched payloads to the configured HTTP end point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/relaylogs/agent/internal/agent"
	"github.com/relaylogs/agent/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultPath, "path to the agent's TOML config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithError(err).Warnf("invalid log level %q, defaulting to info", *logLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config from %q: %v\n", *configPath, err)
		return 1
	}

	log.WithField("agent_name", cfg.Global.AgentName).
		WithField("sources", len(cfg.Sources)).
		Info("starting relaylogs-agent")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := agent.New(cfg, log)
	if err := a.Run(ctx); err != nil {
		log.WithError(err).Error("agent exited with error")
		return 1
	}

	return 0
}
