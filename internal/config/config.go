// Package config defines the forgeloop configuration and its load order:
// defaults, then the JSON config file, then FORGELOOP_* environment
// variables.
package config

// Config is the root configuration.
type Config struct {
	Paths   PathsConfig   `json:"paths"`
	Broker  BrokerConfig  `json:"broker"`
	Journal JournalConfig `json:"journal"`
	Relay   RelayConfig   `json:"relay"`
	Notify  NotifyConfig  `json:"notify"`
	Log     LogConfig     `json:"log"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	// StateRoot is the directory holding change records, snapshots,
	// gap and proposal state, and the rendered changelog.
	StateRoot string `json:"stateRoot" envconfig:"STATE_ROOT"`
}

// BrokerConfig tunes the in-process message broker.
type BrokerConfig struct {
	// MaxHistory bounds the retained message history.
	MaxHistory int `json:"maxHistory" envconfig:"MAX_HISTORY"`
}

// JournalConfig controls the durable message journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	DBPath  string `json:"dbPath" envconfig:"DB_PATH"`
}

// RelayConfig controls Kafka federation of broadcast and delegation
// traffic between forgeloop nodes.
type RelayConfig struct {
	Enabled     bool     `json:"enabled" envconfig:"ENABLED"`
	Brokers     []string `json:"brokers" envconfig:"BROKERS"`
	TopicPrefix string   `json:"topicPrefix" envconfig:"TOPIC_PREFIX"`
	// NodeID identifies this node on the relay topics so it can skip
	// its own messages. Empty means a random id per process.
	NodeID  string `json:"nodeId" envconfig:"NODE_ID"`
	GroupID string `json:"groupId" envconfig:"GROUP_ID"`
}

// NotifyConfig groups outbound notification channels.
type NotifyConfig struct {
	Slack SlackConfig `json:"slack"`
}

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Token   string `json:"token" envconfig:"TOKEN"`
	Channel string `json:"channel" envconfig:"CHANNEL"`
	// APIURL overrides the Slack API endpoint. Used by tests.
	APIURL string `json:"apiUrl" envconfig:"API_URL"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" envconfig:"LEVEL"`
}

// DefaultConfig returns the configuration used when no file or
// environment overrides exist.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			StateRoot: "~/.forgeloop/state",
		},
		Broker: BrokerConfig{
			MaxHistory: 1000,
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  "~/.forgeloop/journal.db",
		},
		Relay: RelayConfig{
			TopicPrefix: "forgeloop",
			GroupID:     "forgeloop-relay",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
