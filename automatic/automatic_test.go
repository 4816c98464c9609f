package automatic

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/stackbot/bot"
	"github.com/domino14/stackbot/config"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/stats"
	"github.com/domino14/stackbot/testhelpers"
)

func testConfig() *config.Config {
	return testhelpers.Config(50000)
}

func testSeed(b byte) Seed {
	var s Seed
	for i := range s {
		s[i] = b + byte(i)
	}
	return s
}

func TestSevenBag(t *testing.T) {
	is := is.New(t)
	bag := NewBag(testSeed(1))
	seq := bag.Take(70)
	for i := 0; i < len(seq); i += 7 {
		seen := map[piece.Kind]bool{}
		for _, k := range seq[i : i+7] {
			is.True(k.Valid())
			seen[k] = true
		}
		is.Equal(len(seen), 7)
	}
	is.Equal(NewBag(testSeed(1)).Take(70), seq)
	is.True(!bytes.Equal(kindBytes(NewBag(testSeed(2)).Take(70)), kindBytes(seq)))
}

func kindBytes(ks []piece.Kind) []byte {
	b := make([]byte, len(ks))
	for i, k := range ks {
		b[i] = byte(k)
	}
	return b
}

func TestSeeds(t *testing.T) {
	is := is.New(t)
	seeds, err := GenerateSeeds(4)
	is.NoErr(err)
	var buf bytes.Buffer
	is.NoErr(WriteSeeds(&buf, seeds))
	is.True(strings.HasPrefix(buf.String(), "#"))
	back, err := ReadSeeds(&buf)
	is.NoErr(err)
	is.Equal(back, seeds)

	_, err = ReadSeeds(strings.NewReader("\n# comment\nnot-a-seed\n"))
	is.True(err != nil)
	_, err = ParseSeed("AAAA")
	is.True(err != nil)
}

func TestPlayGame(t *testing.T) {
	is := is.New(t)
	b, err := bot.New(testConfig())
	is.NoErr(err)
	r := NewGameRunner(b, Options{MaxPieces: 20, Iterations: 100, Preview: 5, LogPath: "x"})
	rec, err := r.PlayGame(context.Background(), 7, testSeed(9))
	is.NoErr(err)
	is.Equal(rec.ID, 7)
	is.Equal(rec.Pieces, 20)
	is.True(!rec.Died)
	is.Equal(len(rec.Moves), 20)
	is.True(rec.MaxHeight > 0)

	st, err := b.State()
	is.NoErr(err)
	is.Equal(st.Board.CellCount(), 80-10*rec.Lines)
}

func TestGamesAreReproducible(t *testing.T) {
	is := is.New(t)
	play := func() *GameRecord {
		b, err := bot.New(testConfig())
		is.NoErr(err)
		r := NewGameRunner(b, Options{MaxPieces: 12, Iterations: 80, Preview: 4, LogPath: "x"})
		rec, err := r.PlayGame(context.Background(), 0, testSeed(5))
		is.NoErr(err)
		return rec
	}
	a, b := play(), play()
	is.Equal(a.Moves, b.Moves)
	is.Equal(a.Lines, b.Lines)
}

func TestPlayRecordsResults(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	opts := Options{
		Games:      3,
		MaxPieces:  10,
		Iterations: 50,
		Preview:    5,
		Workers:    2,
		LogPath:    filepath.Join(dir, "games.yaml"),
		DBPath:     filepath.Join(dir, "results.db"),
		Run:        "test-run",
	}
	ctx := context.Background()
	summary, err := Play(ctx, testConfig(), opts)
	is.NoErr(err)
	is.Equal(summary.Games, 3)
	is.Equal(summary.Pieces.Mean(), 10.0)
	is.True(strings.Contains(summary.String(), "Games played: 3"))
	is.Equal(IsPlaying.Value(), int64(0))
	is.Equal(GamesPlayed.Value(), int64(3))

	f, err := os.Open(opts.LogPath)
	is.NoErr(err)
	defer f.Close()
	recs, err := ReadGameLog(f)
	is.NoErr(err)
	is.Equal(len(recs), 3)
	ids := map[int]bool{}
	for _, rec := range recs {
		ids[rec.ID] = true
		is.Equal(len(rec.Moves), 10)
		_, err := ParseSeed(rec.Seed)
		is.NoErr(err)
	}
	is.Equal(len(ids), 3)

	analyzed, err := AnalyzeLogFile(opts.LogPath)
	is.NoErr(err)
	is.Equal(analyzed.Games, 3)
	is.True(stats.FuzzyEqual(analyzed.Lines.Mean(), summary.Lines.Mean()))

	store, err := OpenResultStore(ctx, opts.DBPath)
	is.NoErr(err)
	defer store.Close()
	sum, err := store.Summary(ctx, "test-run")
	is.NoErr(err)
	is.Equal(sum.Games, 3)
	is.Equal(sum.Deaths, 0)
	is.Equal(sum.MeanPieces, 10.0)
	runs, err := store.Runs(ctx)
	is.NoErr(err)
	is.Equal(runs, []string{"test-run"})
}

func TestOptionsFromConfig(t *testing.T) {
	is := is.New(t)
	cfg := testConfig()
	seedFile := filepath.Join(t.TempDir(), "seeds.txt")
	seeds, err := GenerateSeeds(2)
	is.NoErr(err)
	f, err := os.Create(seedFile)
	is.NoErr(err)
	is.NoErr(WriteSeeds(f, seeds))
	is.NoErr(f.Close())
	cfg.Set(config.ConfigAutoplaySeeds, seedFile)

	opts, err := OptionsFromConfig(cfg)
	is.NoErr(err)
	is.Equal(opts.Games, 2)
	is.Equal(opts.Seeds, seeds)
	is.Equal(opts.Workers, 1)

	cfg.Set(config.ConfigAutoplaySeeds, "")
	cfg.Set(config.ConfigAutoplayIters, 0)
	_, err = OptionsFromConfig(cfg)
	is.True(err != nil)
}

func TestPlayNeedsReachableNats(t *testing.T) {
	is := is.New(t)
	opts := Options{
		Games:      1,
		MaxPieces:  5,
		Iterations: 10,
		Preview:    5,
		Workers:    1,
		NatsURL:    "nats://127.0.0.1:1",
		Run:        "unreachable",
	}
	_, err := Play(context.Background(), testConfig(), opts)
	is.True(err != nil)
	is.Equal(IsPlaying.Value(), int64(0))
}
