// Package automatic plays the bot against a seven-bag randomizer to
// measure how long it survives and how well it clears.
package automatic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/stackbot/bot"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/search"
	"github.com/domino14/stackbot/tree"
)

// GameRecord is what one self-play game leaves behind.
type GameRecord struct {
	ID            int      `yaml:"id" json:"id"`
	Seed          string   `yaml:"seed" json:"seed"`
	Pieces        int      `yaml:"pieces" json:"pieces"`
	Lines         int      `yaml:"lines" json:"lines"`
	Spins         int      `yaml:"spins" json:"spins"`
	PerfectClears int      `yaml:"perfect_clears" json:"perfect_clears"`
	MaxCombo      int      `yaml:"max_combo" json:"max_combo"`
	Died          bool     `yaml:"died" json:"died"`
	MaxHeight     int      `yaml:"max_height" json:"max_height"`
	FinalHoles    int      `yaml:"final_holes" json:"final_holes"`
	Fallbacks     int      `yaml:"fallbacks" json:"fallbacks"`
	Seconds       float64  `yaml:"seconds" json:"seconds"`
	Moves         []string `yaml:"moves,omitempty" json:"moves,omitempty"`
}

// GameRunner plays games one after another with the same bot.
type GameRunner struct {
	bot        *bot.Bot
	maxPieces  int
	preview    int
	iterations int
	keepMoves  bool
}

func NewGameRunner(b *bot.Bot, opts Options) *GameRunner {
	return &GameRunner{
		bot:        b,
		maxPieces:  opts.MaxPieces,
		preview:    max(opts.Preview, 1),
		iterations: opts.Iterations,
		keepMoves:  opts.LogPath != "",
	}
}

// PlayGame plays until the bot tops out or has placed the maximum number
// of pieces.
func (r *GameRunner) PlayGame(ctx context.Context, id int, seed Seed) (*GameRecord, error) {
	tstart := time.Now()
	rules := r.bot.Rules()
	bag := NewBag(seed)
	state := game.NewState(rules.NewBoard(), piece.None, bag.Take(r.preview)...)
	if err := r.bot.Reset(state.Board, state.Hold, state.Queue.Pieces(), false, 0); err != nil {
		return nil, err
	}
	rec := &GameRecord{ID: id, Seed: seed.String()}
	for rec.Pieces < r.maxPieces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.bot.Search(ctx, search.Budget{MaxIterations: uint64(r.iterations)})
		if err != nil && !errors.Is(err, tree.ErrTableFull) {
			return nil, err
		}
		if res.NoMove {
			rec.Died = true
			break
		}
		if res.Fallback {
			rec.Fallbacks++
		}
		next, info, err := state.Advance(rules, res.Best)
		if err != nil {
			return nil, fmt.Errorf("game %d piece %d: %w", id, rec.Pieces, err)
		}
		if err := r.bot.Advance(res.Best); err != nil {
			return nil, fmt.Errorf("game %d piece %d: %w", id, rec.Pieces, err)
		}
		state = next
		rec.record(info, state, r.keepMoves)

		for state.Queue.Len() < r.preview {
			k := bag.Next()
			state.Queue = state.Queue.Append(k)
			if err := r.bot.AddPiece(k); err != nil {
				return nil, err
			}
		}
		if state.Dead(rules) {
			rec.Died = true
			break
		}
	}
	rec.FinalHoles = state.Board.Holes()
	rec.Seconds = time.Since(tstart).Seconds()
	log.Debug().
		Int("game", id).
		Int("pieces", rec.Pieces).
		Int("lines", rec.Lines).
		Bool("died", rec.Died).
		Msg("game-finished")
	return rec, nil
}

func (rec *GameRecord) record(info game.PlacementInfo, after game.State, keepMoves bool) {
	rec.Pieces++
	rec.Lines += info.LinesCleared
	if info.Placement.Spin != move.NoSpin {
		rec.Spins++
	}
	if info.PerfectClear {
		rec.PerfectClears++
	}
	rec.MaxCombo = max(rec.MaxCombo, int(info.Combo))
	rec.MaxHeight = max(rec.MaxHeight, after.Board.MaxHeight())
	if keepMoves {
		rec.Moves = append(rec.Moves, info.Placement.ShortDescription())
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
