package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/domino14/stackbot/bot"
	"github.com/domino14/stackbot/config"
	"github.com/domino14/stackbot/tbp"
)

// The bot speaks the protocol on stdin and stdout; logs go to stderr.
func main() {
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}
	exPath := filepath.Dir(ex)

	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		cfg = config.DefaultConfig()
		cfg.SetupLogging(os.Stderr)
		log.Fatal().Err(err).Msg("bad-arguments")
	}
	cfg.AdjustRelativePaths(exPath)
	cfg.SetupLogging(os.Stderr)
	log.Debug().Interface("config", cfg.SanitizedSettings()).Msg("loaded-config")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := bot.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could-not-create-bot")
	}
	srv := tbp.NewServer(b, cfg.GetDuration(config.ConfigThinkTime))
	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("protocol-error")
	}
	log.Info().Msg("bot shutting down")
}
