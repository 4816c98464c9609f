package automatic

// Self-play data collection.

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/domino14/stackbot/bot"
	"github.com/domino14/stackbot/config"
	"github.com/domino14/stackbot/search"
	"github.com/domino14/stackbot/stats"
	"github.com/domino14/stackbot/tree"
)

var (
	GamesPlayed *expvar.Int
	IsPlaying   *expvar.Int
)

func init() {
	GamesPlayed = expvar.NewInt("autoplayGames")
	IsPlaying = expvar.NewInt("autoplayWorkers")
}

type Options struct {
	Games      int
	MaxPieces  int
	Iterations int
	Preview    int
	// Workers is the number of games played at once. Each game's search
	// runs on a single thread.
	Workers int
	Seeds   []Seed
	LogPath string
	DBPath  string
	// NatsURL, when set, is a server every finished game is published to.
	NatsURL string
	// Run names the run in the results database.
	Run string
}

func OptionsFromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		Games:      cfg.GetInt(config.ConfigAutoplayGames),
		MaxPieces:  cfg.GetInt(config.ConfigAutoplayPieces),
		Iterations: cfg.GetInt(config.ConfigAutoplayIters),
		Preview:    cfg.GetInt(config.ConfigAutoplayPreview),
		Workers:    max(1, cfg.GetInt(config.ConfigThreads)),
		LogPath:    cfg.GetString(config.ConfigAutoplayLog),
		DBPath:     cfg.GetString(config.ConfigAutoplayDB),
		NatsURL:    cfg.GetString(config.ConfigNatsURL),
		Run:        time.Now().UTC().Format("20060102-150405"),
	}
	if p := cfg.GetString(config.ConfigAutoplaySeeds); p != "" {
		seeds, err := LoadSeeds(p)
		if err != nil {
			return opts, err
		}
		opts.Seeds = seeds
		if len(seeds) < opts.Games {
			log.Warn().Int("seeds", len(seeds)).Int("games", opts.Games).Msg("fewer-seeds-than-games")
			opts.Games = len(seeds)
		}
	}
	if opts.Games <= 0 || opts.MaxPieces <= 0 || opts.Iterations <= 0 {
		return opts, errors.New("autoplay needs a positive number of games, pieces and iterations")
	}
	return opts, nil
}

// Summary collects the results of a run.
type Summary struct {
	Games  int
	Deaths int
	Pieces stats.Statistic
	Lines  stats.Statistic
	// LinesPerPiece is over all games together.
	LinesPerPiece float64
	Elapsed       time.Duration

	pieces []float64
}

func (s *Summary) add(rec *GameRecord) {
	s.Games++
	if rec.Died {
		s.Deaths++
	}
	s.Pieces.Push(float64(rec.Pieces))
	s.Lines.Push(float64(rec.Lines))
	s.pieces = append(s.pieces, float64(rec.Pieces))
	if s.Pieces.Mean() > 0 {
		s.LinesPerPiece = s.Lines.Mean() / s.Pieces.Mean()
	}
}

func (s *Summary) String() string {
	var ss strings.Builder
	fmt.Fprintf(&ss, "Games played: %d (%.1fs)\n", s.Games, s.Elapsed.Seconds())
	if s.Games == 0 {
		return ss.String()
	}
	fmt.Fprintf(&ss, "Topped out: %d (%.2f%%)\n", s.Deaths, 100*float64(s.Deaths)/float64(s.Games))
	fmt.Fprintf(&ss, "Pieces: mean %.2f ± %.2f (95%%), median %.1f, min %.0f, max %.0f\n",
		s.Pieces.Mean(), s.Pieces.Interval(95), stats.Median(s.pieces), s.Pieces.Min(), s.Pieces.Max())
	fmt.Fprintf(&ss, "Lines: mean %.2f  stdev %.2f\n", s.Lines.Mean(), s.Lines.Stdev())
	fmt.Fprintf(&ss, "Lines per piece: %.4f\n", s.LinesPerPiece)
	if s.Games > 1 && s.Pieces.Min() != s.Pieces.Max() {
		ss.WriteString("Pieces placed:\n")
		histogram.Fprint(&ss, histogram.Hist(min(15, s.Games), s.pieces), histogram.Linear(40))
	}
	return ss.String()
}

// Play runs a batch of self-play games and returns their summary. Game
// records go to the YAML log and the results database when those are
// configured, and are published over NATS when a server is set.
func Play(ctx context.Context, cfg *config.Config, opts Options) (*Summary, error) {
	if IsPlaying.Value() > 0 {
		return nil, errors.New("games are already being played, please wait till complete")
	}
	tstart := time.Now()
	seeds := opts.Seeds
	if len(seeds) < opts.Games {
		extra, err := GenerateSeeds(opts.Games - len(seeds))
		if err != nil {
			return nil, err
		}
		seeds = append(seeds[:len(seeds):len(seeds)], extra...)
	}

	var logEnc *yaml.Encoder
	if opts.LogPath != "" {
		f, err := os.Create(opts.LogPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		logEnc = yaml.NewEncoder(f)
		defer logEnc.Close()
	}
	var store *ResultStore
	if opts.DBPath != "" {
		var err error
		store, err = OpenResultStore(ctx, opts.DBPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}
	var pub *gamePublisher
	if opts.NatsURL != "" {
		var err error
		pub, err = connectPublisher(opts.NatsURL, opts.Run)
		if err != nil {
			return nil, err
		}
		defer pub.Close()
	}

	workers := max(1, min(opts.Workers, opts.Games))
	tableSize := cfg.GetInt(config.ConfigTTMaxEntries)
	if tableSize <= 0 {
		tableSize = tree.EntriesForMemory(cfg.GetFloat64(config.ConfigTTMemoryFraction)) / workers
	}
	sc, err := search.ConfigFromSettings(cfg)
	if err != nil {
		return nil, err
	}
	sc.Threads = 1

	log.Info().Int("games", opts.Games).Int("workers", workers).
		Int("table-entries", tableSize).Str("run", opts.Run).Msg("autoplay-starting")
	GamesPlayed.Set(0)

	jobs := make(chan int)
	records := make(chan *GameRecord)
	g := errgroup.Group{}
	workerGroup, wctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < opts.Games; i++ {
			select {
			case jobs <- i:
			case <-wctx.Done():
				log.Info().Msg("got stop signal, exiting soon...")
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		workerGroup.Go(func() error {
			b, err := bot.New(cfg, bot.WithTableSize(tableSize), bot.WithSearchConfig(sc))
			if err != nil {
				return err
			}
			r := NewGameRunner(b, opts)
			IsPlaying.Add(1)
			defer IsPlaying.Add(-1)
			for id := range jobs {
				rec, err := r.PlayGame(wctx, id, seeds[id])
				if err != nil {
					if wctx.Err() != nil {
						return nil
					}
					return err
				}
				GamesPlayed.Add(1)
				select {
				case records <- rec:
				case <-wctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(records)
		return workerGroup.Wait()
	})

	summary := &Summary{}
	var sinkErr error
	for rec := range records {
		summary.add(rec)
		if logEnc != nil && sinkErr == nil {
			sinkErr = logEnc.Encode(rec)
		}
		if store != nil && sinkErr == nil {
			sinkErr = store.Record(ctx, opts.Run, rec)
		}
		if pub != nil && sinkErr == nil {
			sinkErr = pub.publish(rec)
		}
		if GamesPlayed.Value()%100 == 0 {
			log.Info().Int64("games", GamesPlayed.Value()).Msg("autoplay-progress")
		}
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	summary.Elapsed = time.Since(tstart)
	log.Info().Int("games", summary.Games).Float64("mean-pieces", summary.Pieces.Mean()).
		Float64("time-elapsed-sec", summary.Elapsed.Seconds()).Msg("autoplay-finished")
	return summary, sinkErr
}
