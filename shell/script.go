package shell

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	luajson "layeh.com/gopher-json"

	"github.com/domino14/stackbot/search"
	"github.com/domino14/stackbot/tbp"
)

func getShell(L *lua.LState) *ShellController {
	shell := L.GetGlobal("stackbot_shell")
	ud, ok := shell.(*lua.LUserData)
	if !ok {
		panic("luserdata not right type")
	}
	sc, ok := ud.Value.(*ShellController)
	if !ok {
		panic("shellcontroller not right type")
	}
	return sc
}

// Run executes a shell command line and returns its output, or an
// "ERROR: " string.
func Run(L *lua.LState) int {
	line := L.CheckString(1)
	sc := getShell(L)
	r, err := sc.Execute(line)
	if err != nil {
		log.Err(err).Str("line", line).Msg("error-executing-script-command")
		L.Push(lua.LString("ERROR: " + err.Error()))
		return 1
	}
	if r == nil {
		L.Push(lua.LString(""))
		return 1
	}
	L.Push(lua.LString(r.message))
	return 1
}

type scriptMove struct {
	Move   tbp.Move `json:"move"`
	Desc   string   `json:"desc"`
	Visits int64    `json:"visits"`
	Mean   float64  `json:"mean"`
}

type scriptResult struct {
	Best       string       `json:"best"`
	NoMove     bool         `json:"no_move"`
	Fallback   bool         `json:"fallback"`
	Iterations uint64       `json:"iterations"`
	Nodes      uint64       `json:"nodes"`
	Value      float64      `json:"value"`
	Moves      []scriptMove `json:"moves"`
}

func resultForScript(res *search.Result) scriptResult {
	sr := scriptResult{
		Best:       res.Best.ShortDescription(),
		NoMove:     res.NoMove,
		Fallback:   res.Fallback,
		Iterations: res.Iterations,
		Nodes:      res.Nodes,
		Value:      res.BestKnownValue,
		Moves:      []scriptMove{},
	}
	for _, c := range res.Children {
		sr.Moves = append(sr.Moves, scriptMove{
			Move:   tbp.FromPlacement(c.Placement),
			Desc:   c.Placement.ShortDescription(),
			Visits: c.Visits,
			Mean:   c.Mean,
		})
	}
	return sr
}

// Result pushes the last search result as a Lua table, or nil.
func Result(L *lua.LState) int {
	sc := getShell(L)
	if sc.lastResult == nil {
		L.Push(lua.LNil)
		return 1
	}
	dat, err := json.Marshal(resultForScript(sc.lastResult))
	if err != nil {
		L.RaiseError("encoding result: %v", err)
		return 0
	}
	v, err := luajson.Decode(L, dat)
	if err != nil {
		L.RaiseError("decoding result: %v", err)
		return 0
	}
	L.Push(v)
	return 1
}

func (sc *ShellController) newLuaState() *lua.LState {
	L := lua.NewState()
	luajson.Preload(L)

	lsc := L.NewUserData()
	lsc.Value = sc
	L.SetGlobal("stackbot_shell", lsc)
	L.SetGlobal("stackbot_run", L.NewFunction(Run))
	L.SetGlobal("stackbot_result", L.NewFunction(Result))
	return L
}

func (sc *ShellController) script(cmd *shellcmd) (*Response, error) {
	if len(cmd.args) == 0 {
		return nil, errors.New("need arguments for script")
	}
	L := sc.newLuaState()
	defer L.Close()
	if err := L.DoFile(cmd.args[0]); err != nil {
		log.Err(err).Msg("script-failed")
		return nil, err
	}
	return nil, nil
}
