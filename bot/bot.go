// Package bot is the engine facade a frontend drives: it owns the rules,
// the tree and the searcher, and keeps tree updates from racing a search.
package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/config"
	"github.com/domino14/stackbot/evaluator"
	"github.com/domino14/stackbot/game"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/movegen"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/search"
	"github.com/domino14/stackbot/tree"
	"github.com/domino14/stackbot/zobrist"
)

var ErrNotStarted = fmt.Errorf("%w: no game has been started", game.ErrInvalidInput)

type Option func(*Bot)

// WithEvaluator replaces the evaluator named in the config.
func WithEvaluator(ev evaluator.Evaluator) Option {
	return func(b *Bot) { b.ev = ev }
}

// WithTableSize fixes the transposition table capacity.
func WithTableSize(entries int) Option {
	return func(b *Bot) { b.tableSize = entries }
}

// WithRules replaces the rules built from the config.
func WithRules(r game.Rules) Option {
	return func(b *Bot) { b.rules = r }
}

func WithSearchConfig(sc search.Config) Option {
	return func(b *Bot) { b.searchCfg = &sc }
}

type Bot struct {
	cfg       *config.Config
	rules     game.Rules
	ev        evaluator.Evaluator
	tableSize int
	searchCfg *search.Config

	gen      *movegen.Generator
	tree     *tree.Tree
	searcher *search.Searcher

	// mu is held by a running search and by anything that changes the tree.
	mu      sync.Mutex
	started bool
	last    atomic.Pointer[search.Result]
}

// RulesFromConfig builds the game rules described by the config.
func RulesFromConfig(cfg *config.Config) (game.Rules, error) {
	r := game.NewRules(cfg.GetInt(config.ConfigBoardWidth), cfg.GetInt(config.ConfigBoardHeight))
	r.HoldEnabled = cfg.GetBool(config.ConfigHold)
	kicks, err := piece.RotationSystemByName(cfg.GetString(config.ConfigRotationSystem))
	if err != nil {
		return r, err
	}
	r.Kicks = kicks
	if n := cfg.GetInt(config.ConfigMovegenMaxStates); n > 0 {
		r.MaxMovegenStates = n
	}
	return r, r.Validate()
}

func New(cfg *config.Config, opts ...Option) (*Bot, error) {
	b := &Bot{cfg: cfg}
	rules, err := RulesFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	b.rules = rules
	for _, o := range opts {
		o(b)
	}
	if err := b.rules.Validate(); err != nil {
		return nil, err
	}
	if b.ev == nil {
		b.ev, err = evaluator.FromConfig(cfg)
		if err != nil {
			return nil, err
		}
	}
	if b.tableSize <= 0 {
		b.tableSize = cfg.GetInt(config.ConfigTTMaxEntries)
	}
	if b.tableSize <= 0 {
		b.tableSize = tree.EntriesForMemory(cfg.GetFloat64(config.ConfigTTMemoryFraction))
	}
	if b.searchCfg == nil {
		sc, err := search.ConfigFromSettings(cfg)
		if err != nil {
			return nil, err
		}
		b.searchCfg = &sc
	}

	z := &zobrist.Zobrist{}
	if seed := cfg.GetUint64(config.ConfigZobristSeed); seed != 0 {
		z.InitializeSeeded(seed)
	} else {
		z.Initialize()
	}
	b.gen = movegen.NewGenerator(b.rules)
	b.tree = tree.New(b.gen, b.ev, z, tree.NewTable(b.tableSize), tree.DefaultOptions())
	b.searcher = search.NewSearcher(b.tree, *b.searchCfg)
	log.Debug().
		Int("width", b.rules.Width).
		Int("height", b.rules.Height).
		Bool("hold", b.rules.HoldEnabled).
		Str("kicks", b.rules.Kicks.Name()).
		Int("table-entries", b.tableSize).
		Int("threads", b.searchCfg.Threads).
		Msg("bot-created")
	return b, nil
}

func (b *Bot) Rules() game.Rules { return b.rules }

// lock takes the tree away from any running search. A stop sent while
// waiting must not leak into the next search.
func (b *Bot) lock() {
	for !b.mu.TryLock() {
		b.searcher.Stop()
		time.Sleep(time.Millisecond)
	}
	b.searcher.ClearStop()
}

// Reset replaces the position. Search work on a position that is still
// reachable from the new one is kept.
func (b *Bot) Reset(bd board.Board, hold piece.Kind, queue []piece.Kind, b2b bool, combo uint8) error {
	b.lock()
	defer b.mu.Unlock()
	s := game.NewState(bd, hold, queue...)
	s.BackToBack = b2b
	s.Combo = combo
	if err := b.tree.SetRoot(s); err != nil {
		return err
	}
	b.started = true
	b.last.Store(nil)
	return nil
}

// Advance plays p, which does not have to be the suggested move.
func (b *Bot) Advance(p move.Placement) error {
	b.lock()
	defer b.mu.Unlock()
	if !b.started {
		return ErrNotStarted
	}
	b.last.Store(nil)
	return b.tree.Advance(p)
}

// AddPiece appends a newly revealed piece to the queue.
func (b *Bot) AddPiece(k piece.Kind) error {
	b.lock()
	defer b.mu.Unlock()
	if !b.started {
		return ErrNotStarted
	}
	return b.tree.Reveal(k)
}

// State returns the current position.
func (b *Bot) State() (game.State, error) {
	b.lock()
	defer b.mu.Unlock()
	if !b.started {
		return game.State{}, ErrNotStarted
	}
	return *b.tree.Root().State(), nil
}

func (b *Bot) Search(ctx context.Context, budget search.Budget) (*search.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil, ErrNotStarted
	}
	res, err := b.searcher.Search(ctx, budget)
	if res != nil {
		b.last.Store(res)
	}
	return res, err
}

// Stop ends a running search early. Sent before a search starts, it ends
// that search after its first expansion; changing the position forgets it.
func (b *Bot) Stop() {
	b.searcher.Stop()
}

// Suggest returns the result of the last search on the current position,
// or nil.
func (b *Bot) Suggest() *search.Result {
	return b.last.Load()
}

// Path returns the inputs that play p from the current position.
func (b *Bot) Path(p move.Placement) (move.Path, error) {
	s, err := b.State()
	if err != nil {
		return nil, err
	}
	return b.gen.Path(s.Board, p)
}

// TableStats reports on the transposition table.
func (b *Bot) TableStats() tree.TableStats {
	return b.tree.Table().Stats()
}
