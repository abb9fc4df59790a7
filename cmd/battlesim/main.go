package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/CesarAugustusGroB/BattleSim.io/internal/advisor"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/config"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/game"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/logging"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/sim"
	"github.com/CesarAugustusGroB/BattleSim.io/internal/spectate"
)

func main() {
	var cfgPath string
	var verbose bool
	flag.StringVar(&cfgPath, "config", "", "path to a JSON, YAML or TOML config file")
	flag.BoolVar(&verbose, "verbose", false, "record per-unit state changes in the battle log")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	lcfg := logging.Config{Level: cfg.LogLevel, Component: "battlesim"}
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
	simLog := sim.NewSimLog(verbose)
	engine, err := sim.New(cfg.SimConfig(), sim.WithSeed(seed), sim.WithSimLog(simLog), sim.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("engine setup failed")
	}
	defer engine.Dispose()
	if err := engine.SpawnOpening(); err != nil {
		logger.Fatal().Err(err).Msg("opening spawn failed")
	}

	opts := []game.Option{game.WithLogger(logger)}
	if cfg.Advisor.APIKey != "" {
		a := cfg.Advisor
		client, err := advisor.New(context.Background(), a.Endpoint, a.Model, a.APIKey, a.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("advisor setup failed")
		}
		opts = append(opts, game.WithAdvisor(client))
	}
	var srv *spectate.Server
	if cfg.Spectate.Addr != "" {
		w, h := engine.Arena()
		hub := spectate.NewHub(w, h, logger)
		srv = spectate.NewServer(cfg.Spectate.Addr, hub, logger)
		srv.Start()
		opts = append(opts, game.WithSpectators(hub, cfg.Spectate.Interval))
	}

	g := game.New(engine, simLog, opts...)
	logger.Info().Int64("seed", seed).Msg("battle started")

	ebiten.SetWindowTitle("BattleSim")
	ebiten.SetWindowSize(g.Size())
	runErr := ebiten.RunGame(g)

	g.Close()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("spectator server shutdown")
		}
		cancel()
	}
	if runErr != nil {
		logger.Fatal().Err(runErr).Msg("game loop exited")
	}
}
