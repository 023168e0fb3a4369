package models

// SettingsVersion is the schema version written by this build.
const SettingsVersion = 5

// Defaults for the global idle shutdown settings.
const (
	DefaultTopicPattern        = "{topic}/{prefix}/"
	DefaultIdleTimeout         = 30 // minutes
	DefaultIdleIgnoreCommands  = "M105"
	DefaultIdleTimeoutWaitTemp = 50 // °C
	DefaultAbortTimeout        = 30 // seconds
)

// Settings is the persisted configuration document.
type Settings struct {
	Version             int     `json:"_version" yaml:"-"`
	Relays              []Relay `json:"arrRelays" yaml:"relays"`
	FullTopicPattern    string  `json:"full_topic_pattern" yaml:"full_topic_pattern"`
	PowerOffWhenIdle    bool    `json:"powerOffWhenIdle" yaml:"powerOffWhenIdle"`
	IdleTimeout         int     `json:"idleTimeout" yaml:"idleTimeout"`
	IdleIgnoreCommands  string  `json:"idleIgnoreCommands" yaml:"idleIgnoreCommands"`
	IdleTimeoutWaitTemp int     `json:"idleTimeoutWaitTemp" yaml:"idleTimeoutWaitTemp"`
	AbortTimeout        int     `json:"abortTimeout" yaml:"abortTimeout"`
}

// DefaultSettings returns an empty settings document at the current version.
func DefaultSettings() Settings {
	return Settings{
		Version:             SettingsVersion,
		Relays:              []Relay{},
		FullTopicPattern:    DefaultTopicPattern,
		IdleTimeout:         DefaultIdleTimeout,
		IdleIgnoreCommands:  DefaultIdleIgnoreCommands,
		IdleTimeoutWaitTemp: DefaultIdleTimeoutWaitTemp,
		AbortTimeout:        DefaultAbortTimeout,
	}
}

// Clone returns a copy that does not share the relay slice.
func (s Settings) Clone() Settings {
	out := s
	out.Relays = make([]Relay, len(s.Relays))
	copy(out.Relays, s.Relays)
	return out
}
