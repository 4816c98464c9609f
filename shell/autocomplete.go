package shell

import (
	"github.com/chzyer/readline"

	"github.com/domino14/stackbot/config"
)

var settingKeys = []string{
	config.ConfigThreads, config.ConfigExploration, config.ConfigVirtualLoss,
	config.ConfigDeadValue, config.ConfigExpandBatch, config.ConfigWideningVisits,
	config.ConfigPolicy, config.ConfigTTMaxEntries, config.ConfigEvaluator,
	config.ConfigWeightsFile, config.ConfigRotationSystem, config.ConfigHold,
	config.ConfigBoardWidth, config.ConfigBoardHeight, config.ConfigZobristSeed,
}

func completer() *readline.PrefixCompleter {
	settings := make([]readline.PrefixCompleterInterface, len(settingKeys))
	for i, k := range settingKeys {
		settings[i] = readline.PcItem(k)
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("help",
			readline.PcItem("search"), readline.PcItem("autoplay"), readline.PcItem("script")),
		readline.PcItem("new", readline.PcItem("-hold"), readline.PcItem("-board"), readline.PcItem("-rows")),
		readline.PcItem("queue"),
		readline.PcItem("show"),
		readline.PcItem("search",
			readline.PcItem("-iterations"), readline.PcItem("-time"), readline.PcItem("-nodes")),
		readline.PcItem("best"),
		readline.PcItem("play", readline.PcItem("best")),
		readline.PcItem("path", readline.PcItem("best")),
		readline.PcItem("stats"),
		readline.PcItem("set", settings...),
		readline.PcItem("autoplay",
			readline.PcItem("-games"), readline.PcItem("-pieces"), readline.PcItem("-iterations"),
			readline.PcItem("-threads"), readline.PcItem("-log"), readline.PcItem("-db"), readline.PcItem("-nats")),
		readline.PcItem("analyze"),
		readline.PcItem("script"),
		readline.PcItem("exit"),
	)
}
