package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/domino14/stackbot/automatic"
	"github.com/domino14/stackbot/board"
	"github.com/domino14/stackbot/bot"
	"github.com/domino14/stackbot/move"
	"github.com/domino14/stackbot/piece"
	"github.com/domino14/stackbot/search"
)

type Response struct {
	message string
}

func (r *Response) Message() string {
	return r.message
}

type CmdOptions map[string][]string

func (c CmdOptions) String(key string) string {
	v := c[key]
	if len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c CmdOptions) IntDefault(key string, defaultI int) (int, error) {
	v := c[key]
	if len(v) == 0 {
		return defaultI, nil
	}
	return strconv.Atoi(v[0])
}

func (c CmdOptions) Bool(key string) bool {
	v := c[key]
	if len(v) == 0 {
		return false
	}
	return strings.ToLower(v[0]) == "true"
}

func (c CmdOptions) Duration(key string) (time.Duration, error) {
	v := c[key]
	if len(v) == 0 {
		return 0, nil
	}
	return time.ParseDuration(v[0])
}

func msg(message string) *Response {
	return &Response{message: message}
}

type handler func(sc *ShellController, cmd *shellcmd) (*Response, error)

var commands map[string]handler

func init() {
	commands = map[string]handler{
		"help":     (*ShellController).help,
		"new":      (*ShellController).newGame,
		"queue":    (*ShellController).queue,
		"show":     (*ShellController).show,
		"search":   (*ShellController).search,
		"best":     (*ShellController).best,
		"play":     (*ShellController).play,
		"path":     (*ShellController).path,
		"stats":    (*ShellController).stats,
		"set":      (*ShellController).set,
		"autoplay": (*ShellController).autoplay,
		"analyze":  (*ShellController).analyze,
		"script":   (*ShellController).script,
	}
}

func (sc *ShellController) help(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return msg(usage()), nil
	}
	return msg(usageTopic(cmd.args[0])), nil
}

// newGame sets up a position: new <queue> [-hold K] [-board file]
// [-rows r1,r2,...] [-b2b true] [-combo n]. Board rows are top first.
func (sc *ShellController) newGame(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return nil, errors.New("usage: new <queue> [-hold K] [-board file] [-rows r1,r2]")
	}
	queue, err := piece.ParseKinds(strings.Join(cmd.args, ""))
	if err != nil {
		return nil, err
	}
	hold := piece.None
	if h := cmd.options.String("hold"); h != "" {
		if hold, err = piece.ParseKind(h); err != nil {
			return nil, err
		}
	}
	var rows []string
	if f := cmd.options.String("board"); f != "" {
		dat, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		rows = lo.Filter(strings.Split(string(dat), "\n"), func(r string, _ int) bool {
			return strings.TrimSpace(r) != ""
		})
	} else if r := cmd.options.String("rows"); r != "" {
		rows = strings.Split(r, ",")
	}
	rules := sc.bot.Rules()
	bd, err := board.Parse(rules.Width, rules.Height, rows...)
	if err != nil {
		return nil, err
	}
	combo, err := cmd.options.IntDefault("combo", 0)
	if err != nil {
		return nil, err
	}
	if err := sc.bot.Reset(bd, hold, queue, cmd.options.Bool("b2b"), uint8(min(max(combo, 0), 255))); err != nil {
		return nil, err
	}
	sc.lastResult = nil
	return sc.show(cmd)
}

func (sc *ShellController) queue(cmd *shellcmd) (*Response, error) {
	kinds, err := piece.ParseKinds(strings.Join(cmd.args, ""))
	if err != nil {
		return nil, err
	}
	for _, k := range kinds {
		if err := sc.bot.AddPiece(k); err != nil {
			return nil, err
		}
	}
	return sc.show(cmd)
}

func (sc *ShellController) show(cmd *shellcmd) (*Response, error) {
	st, err := sc.bot.State()
	if errors.Is(err, bot.ErrNotStarted) {
		return nil, errNoGame
	} else if err != nil {
		return nil, err
	}
	return msg(st.String()), nil
}

// search [-iterations n] [-time 2s] [-nodes n]. With no budget it runs
// for a second.
func (sc *ShellController) search(cmd *shellcmd) (*Response, error) {
	iters, err := cmd.options.IntDefault("iterations", 0)
	if err != nil {
		return nil, err
	}
	nodes, err := cmd.options.IntDefault("nodes", 0)
	if err != nil {
		return nil, err
	}
	dur, err := cmd.options.Duration("time")
	if err != nil {
		return nil, err
	}
	if iters <= 0 && nodes <= 0 && dur <= 0 {
		dur = time.Second
	}
	budget := search.Budget{Duration: dur, MaxIterations: uint64(max(iters, 0)), MaxNodes: uint64(max(nodes, 0))}
	ctx, cancel := context.WithCancel(context.Background())
	sc.searching.Store(&cancel)
	res, err := sc.bot.Search(ctx, budget)
	sc.searching.Store(nil)
	cancel()
	if errors.Is(err, bot.ErrNotStarted) {
		return nil, errNoGame
	}
	if res == nil {
		return nil, err
	}
	sc.lastResult = res
	out := res.String()
	if err != nil {
		out += "Warning: " + err.Error() + "\n"
	}
	return msg(out), nil
}

func (sc *ShellController) best(cmd *shellcmd) (*Response, error) {
	if sc.lastResult == nil {
		return nil, errors.New("no search has been run on this position")
	}
	return msg(sc.lastResult.String()), nil
}

// chosen picks a move out of the last result: "best" or nothing for the
// chosen move, or a 1-based row of the result table.
func (sc *ShellController) chosen(args []string) (move.Placement, error) {
	res := sc.lastResult
	if res == nil {
		return move.Placement{}, errors.New("no search has been run on this position")
	}
	if res.NoMove {
		return move.Placement{}, errors.New("there is no legal move")
	}
	if len(args) == 0 || args[0] == "best" {
		return res.Best, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return move.Placement{}, err
	}
	if n < 1 || n > len(res.Children) {
		return move.Placement{}, fmt.Errorf("move %d is out of range 1-%d", n, len(res.Children))
	}
	return res.Children[n-1].Placement, nil
}

// play [best|n] or play -piece T -rot north -x 4 -y 0 [-hold true].
func (sc *ShellController) play(cmd *shellcmd) (*Response, error) {
	var p move.Placement
	if k := cmd.options.String("piece"); k != "" {
		kind, err := piece.ParseKind(k)
		if err != nil {
			return nil, err
		}
		rot, err := piece.ParseRotation(lo.CoalesceOrEmpty(cmd.options.String("rot"), "north"))
		if err != nil {
			return nil, err
		}
		x, err := cmd.options.IntDefault("x", 0)
		if err != nil {
			return nil, err
		}
		y, err := cmd.options.IntDefault("y", 0)
		if err != nil {
			return nil, err
		}
		p = move.Placement{
			Location: move.Location{Piece: kind, Rotation: rot, X: int8(x), Y: int8(y)},
			Hold:     cmd.options.Bool("hold"),
		}
	} else {
		var err error
		if p, err = sc.chosen(cmd.args); err != nil {
			return nil, err
		}
	}
	if err := sc.bot.Advance(p); err != nil {
		return nil, err
	}
	sc.lastResult = nil
	resp, err := sc.show(cmd)
	if err != nil {
		return nil, err
	}
	return msg("Played " + p.ShortDescription() + "\n" + resp.message), nil
}

func (sc *ShellController) path(cmd *shellcmd) (*Response, error) {
	p, err := sc.chosen(cmd.args)
	if err != nil {
		return nil, err
	}
	inputs, err := sc.bot.Path(p)
	if err != nil {
		return nil, err
	}
	return msg(p.ShortDescription() + ": " + inputs.String()), nil
}

func (sc *ShellController) stats(cmd *shellcmd) (*Response, error) {
	ts := sc.bot.TableStats()
	return msg(fmt.Sprintf("Table: %d / %d nodes, %d created, %d lookups, %d hits, %d collisions, %d evictions",
		ts.Size, ts.Capacity, ts.Created, ts.Lookups, ts.Hits, ts.Collisions, ts.Evictions)), nil
}

// set changes a config setting. The bot is rebuilt, so the position is
// lost.
func (sc *ShellController) set(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		var ss strings.Builder
		for k, v := range sc.config.SanitizedSettings() {
			fmt.Fprintf(&ss, "%-22s%v\n", k, v)
		}
		return msg(ss.String()), nil
	}
	key := cmd.args[0]
	if len(cmd.args) == 1 {
		return msg(fmt.Sprintf("%v", sc.config.Get(key))), nil
	}
	old := sc.config.Get(key)
	sc.config.Set(key, cmd.args[1])
	b, err := bot.New(sc.config)
	if err != nil {
		sc.config.Set(key, old)
		return nil, err
	}
	sc.bot = b
	sc.lastResult = nil
	return msg("set " + key + " to " + cmd.args[1]), nil
}

// autoplay [-games n] [-pieces n] [-iterations n] [-threads n] [-log f]
// [-db f] [-nats url]
func (sc *ShellController) autoplay(cmd *shellcmd) (*Response, error) {
	opts, err := automatic.OptionsFromConfig(sc.config)
	if err != nil {
		return nil, err
	}
	for key, dst := range map[string]*int{
		"games":      &opts.Games,
		"pieces":     &opts.MaxPieces,
		"iterations": &opts.Iterations,
		"threads":    &opts.Workers,
	} {
		if *dst, err = cmd.options.IntDefault(key, *dst); err != nil {
			return nil, err
		}
	}
	opts.LogPath = lo.CoalesceOrEmpty(cmd.options.String("log"), opts.LogPath)
	opts.DBPath = lo.CoalesceOrEmpty(cmd.options.String("db"), opts.DBPath)
	opts.NatsURL = lo.CoalesceOrEmpty(cmd.options.String("nats"), opts.NatsURL)
	summary, err := automatic.Play(context.Background(), sc.config, opts)
	if err != nil {
		return nil, err
	}
	return msg(summary.String()), nil
}

func (sc *ShellController) analyze(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return nil, errors.New("usage: analyze <game log>")
	}
	summary, err := automatic.AnalyzeLogFile(cmd.args[0])
	if err != nil {
		return nil, err
	}
	return msg(summary.String()), nil
}
