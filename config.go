package replica

import (
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Config is the startup surface of an engine. It is read once; nothing
// in here is consulted after construction.
type Config struct {
	// Name identifies the application in logs and the hail.
	Name string `yaml:"name"`

	// Address is the listen address of an authority or the remote
	// address of a client.
	Address string `yaml:"address"`

	// ReckonInterval is the dead reckoning period in seconds.
	// Unset or zero means DefaultReckonInterval.
	ReckonInterval float64 `yaml:"reckoning_interval"`

	// DiagAddress, if set, serves the websocket diagnostics stream.
	DiagAddress string `yaml:"diag_address"`

	Auth  AuthConfig  `yaml:"auth"`
	Debug DebugConfig `yaml:"debug"`
}

// AuthConfig gates the SRP stage of the approval handshake. Name and
// Password are only used by the client role.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DB       string `yaml:"db"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

// DebugConfig is the transport fault injection block, passed through
// verbatim to the lossy packet conn. All zero means no interference.
type DebugConfig struct {
	// LossPct and DupPct are percentages in [0, 100].
	LossPct float64 `yaml:"packet_loss"`
	DupPct  float64 `yaml:"duplicate"`

	// MinLatencyMs is added to every outbound packet; RandLatencyMs
	// is the upper bound of an extra uniformly random delay.
	MinLatencyMs  int `yaml:"min_latency_ms"`
	RandLatencyMs int `yaml:"random_latency_ms"`
}

// LoadConfig reads and unmarshals a yaml configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Name:           "replica",
		Address:        "0.0.0.0:33000",
		ReckonInterval: DefaultReckonInterval,
	}
}
