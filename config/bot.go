package config

// BotPattern selects how the headless client steers its avatar.
type BotPattern string

const (
	BotIdle   BotPattern = "idle"
	BotCircle BotPattern = "circle"
	BotZigzag BotPattern = "zigzag"
)

// BotConfig drives the headless client's generated input.
type BotConfig struct {
	Pattern  BotPattern `toml:"pattern"`
	PeriodMs int        `toml:"period_ms"` // time for one full cycle
}

func defaultBot() BotConfig {
	return BotConfig{
		Pattern:  BotCircle,
		PeriodMs: 4000,
	}
}
