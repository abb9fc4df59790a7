package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/CesarAugustusGroB/BattleSim.io/internal/config"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/logging"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/sim"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/tui"
)

func main() {
	var cfgPath, logPath string
	flag.StringVar(&cfgPath, "config", "", "path to a JSON, YAML or TOML config file")
	flag.StringVar(&logPath, "log", "", "write logs to this file (the terminal is busy drawing)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	var out io.Writer = io.Discard
	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		out = f
	}
	lcfg := logging.Config{Level: cfg.LogLevel, Output: out, NoColor: true, Component: "battlesim-tui"}
	if cfg.Graylog.Enabled {
		lcfg.GraylogAddress = cfg.Graylog.Address
	}
	logger, closer, err := logging.Setup(lcfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closer.Close()

	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	engine, err := sim.New(cfg.SimConfig(), sim.WithSeed(seed), sim.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Dispose()
	if err := engine.SpawnOpening(); err != nil {
		log.Fatal(err)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		log.Fatal(err)
	}
	if err := screen.Init(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := tui.New(screen, engine, logger).Run(ctx)
	screen.Fini()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error().Err(runErr).Msg("viewer exited")
		os.Exit(1)
	}
}
