// Package testhelpers has configs and boards shared by tests.
package testhelpers

import (
	"testing"

	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/config"
)

// Config is a default config with a small transposition table, a single
// search worker and fixed zobrist keys, so searches are repeatable.
func Config(tableEntries int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Set(config.ConfigTTMaxEntries, tableEntries)
	cfg.Set(config.ConfigThreads, 1)
	cfg.Set(config.ConfigZobristSeed, 11)
	return cfg
}

// Board parses rows, top first, onto a board of the given size and fails
// the test on error.
func Board(t testing.TB, width, height int, rows ...string) board.Board {
	t.Helper()
	b, err := board.Parse(width, height, rows...)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// Well is four rows filled except for the two rightmost columns.
var Well = []string{
	"########..",
	"########..",
	"########..",
	"########..",
}

// TSlot is a T-spin double setup: a T rotated south into the slot under
// the overhang at column 3 clears two lines.
var TSlot = []string{
	"...#......",
	"###...####",
	"####.#####",
}
