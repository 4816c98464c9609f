package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/domino14/stackbot/automatic"
	"github.com/domino14/stackbot/config"
)

// autoplay runs self-play games from the config, or summarizes an old
// game log with `autoplay analyze <log>`.
func main() {
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}
	exPath := filepath.Dir(ex)

	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.AdjustRelativePaths(exPath)
	cfg.SetupLogging(os.Stderr)

	if args := cfg.Args(); len(args) > 0 {
		if args[0] != "analyze" || len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: autoplay [flags] | autoplay analyze <game log>")
			os.Exit(2)
		}
		summary, err := automatic.AnalyzeLogFile(args[1])
		if err != nil {
			log.Fatal().Err(err).Msg("analyze-failed")
		}
		fmt.Print(summary.String())
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts, err := automatic.OptionsFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bad-options")
	}
	summary, err := automatic.Play(ctx, cfg, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("autoplay-failed")
	}
	fmt.Print(summary.String())
}
