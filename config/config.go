package config

import (
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ConfigDebug            = "debug"
	ConfigLogLevel         = "log-level"
	ConfigConfigFile       = "config"
	ConfigCPUProfile       = "cpu-profile"
	ConfigMemProfile       = "mem-profile"
	ConfigThreads          = "threads"
	ConfigExploration      = "exploration"
	ConfigVirtualLoss      = "virtual-loss"
	ConfigDeadValue        = "dead-value"
	ConfigExpandBatch      = "expand-batch"
	ConfigWideningVisits   = "widening-visits"
	ConfigPolicy           = "policy"
	ConfigTTMaxEntries     = "tt-max-entries"
	ConfigTTMemoryFraction = "tt-memory-fraction"
	ConfigZobristSeed      = "zobrist-seed"
	ConfigEvaluator        = "evaluator"
	ConfigWeightsFile      = "weights-file"
	ConfigRotationSystem   = "rotation-system"
	ConfigBoardWidth       = "board-width"
	ConfigBoardHeight      = "board-height"
	ConfigHold             = "hold"
	ConfigThinkTime        = "think-time"
	ConfigMovegenMaxStates = "movegen-max-states"
	ConfigAutoplayGames    = "autoplay-games"
	ConfigAutoplayPieces   = "autoplay-pieces"
	ConfigAutoplayDB       = "autoplay-db"
	ConfigAutoplayLog      = "autoplay-log"
	ConfigAutoplayIters    = "autoplay-iterations"
	ConfigAutoplayPreview  = "autoplay-preview"
	ConfigAutoplaySeeds    = "autoplay-seeds"
	ConfigNatsURL          = "nats-url"
)

type Config struct {
	*viper.Viper
	args []string
}

type option struct {
	key   string
	def   interface{}
	usage string
}

var options = []option{
	{ConfigDebug, false, "turn on debug logging"},
	{ConfigLogLevel, "info", "log level: debug, info, warn, error"},
	{ConfigConfigFile, "", "path to a YAML config file"},
	{ConfigCPUProfile, "", "write a CPU profile to this file"},
	{ConfigMemProfile, "", "write a memory profile to this file"},
	{ConfigThreads, max(1, runtime.NumCPU()-1), "number of search workers"},
	{ConfigExploration, 1.4, "exploration constant of the selection policy"},
	{ConfigVirtualLoss, 1.0, "value subtracted per pending visit while a node is being searched"},
	{ConfigDeadValue, -1000.0, "value of a position where the next piece cannot spawn"},
	{ConfigExpandBatch, 8, "children materialized per expansion step"},
	{ConfigWideningVisits, 4, "visits needed per materialized child before more are added"},
	{ConfigPolicy, "uct", "selection policy: uct or puct"},
	{ConfigTTMaxEntries, 0, "maximum nodes kept in the transposition table (0 = derive from memory)"},
	{ConfigTTMemoryFraction, 0.25, "fraction of system memory the transposition table may use"},
	{ConfigZobristSeed, 0, "seed for the zobrist tables (0 = random)"},
	{ConfigEvaluator, "freestyle", "evaluator: freestyle or heights"},
	{ConfigWeightsFile, "", "YAML file with freestyle weights"},
	{ConfigRotationSystem, "srs", "rotation system: srs or none"},
	{ConfigBoardWidth, 10, "board width"},
	{ConfigBoardHeight, 40, "board height including the hidden rows"},
	{ConfigHold, true, "allow hold"},
	{ConfigThinkTime, "100ms", "minimum time spent before answering a suggest request"},
	{ConfigMovegenMaxStates, 0, "cap on states visited per placement search (0 = no cap)"},
	{ConfigAutoplayGames, 10, "games played by autoplay"},
	{ConfigAutoplayPieces, 500, "maximum pieces per autoplay game"},
	{ConfigAutoplayDB, "", "sqlite database to record autoplay results in"},
	{ConfigAutoplayLog, "", "YAML file to write per-game autoplay records to"},
	{ConfigAutoplayIters, 500, "search iterations per autoplay move"},
	{ConfigAutoplayPreview, 5, "queue pieces visible to the bot during autoplay"},
	{ConfigAutoplaySeeds, "", "file of base64 game seeds; games are seeded randomly without one"},
	{ConfigNatsURL, "", "NATS server that autoplay publishes finished games to"},
}

// DefaultConfig returns a config with every default set and nothing read
// from the environment.
func DefaultConfig() *Config {
	v := viper.New()
	for _, o := range options {
		v.SetDefault(o.key, o.def)
	}
	return &Config{Viper: v}
}

// Load reads, in increasing priority: defaults, the optional config file,
// STACKBOT_* environment variables and command-line flags. Arguments that
// are not flags are kept and available from Args.
func (c *Config) Load(args []string) error {
	v := viper.New()
	fs := pflag.NewFlagSet("stackbot", pflag.ContinueOnError)
	for _, o := range options {
		v.SetDefault(o.key, o.def)
		switch d := o.def.(type) {
		case bool:
			fs.Bool(o.key, d, o.usage)
		case int:
			fs.Int(o.key, d, o.usage)
		case float64:
			fs.Float64(o.key, d, o.usage)
		case string:
			fs.String(o.key, d, o.usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	v.SetEnvPrefix("stackbot")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	if cf := v.GetString(ConfigConfigFile); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	c.Viper = v
	c.args = fs.Args()
	return nil
}

// Args returns the positional arguments left over after Load.
func (c *Config) Args() []string {
	return c.args
}

// SanitizedSettings is safe to log. Credentials in the NATS URL are
// masked.
func (c *Config) SanitizedSettings() map[string]interface{} {
	settings := c.AllSettings()
	if u, err := url.Parse(c.GetString(ConfigNatsURL)); err == nil && u.User != nil {
		u.User = url.User("redacted")
		settings[ConfigNatsURL] = u.String()
	}
	return settings
}

// AdjustRelativePaths resolves relative file settings against basepath
// when they do not exist relative to the working directory.
func (c *Config) AdjustRelativePaths(basepath string) {
	for _, key := range []string{ConfigWeightsFile, ConfigAutoplaySeeds} {
		p := c.GetString(key)
		if p == "" || filepath.IsAbs(p) {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			continue
		}
		c.Set(key, filepath.Join(basepath, p))
	}
}
