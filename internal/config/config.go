// Package config loads the node's static configuration using viper,
// the way the teacher's capture-agent config loader does (same
// mapstructure-tagged tree, same Load/Valid split) — narrowed here from
// a packet-capture agent's config surface to the node identity,
// listener, timeouts, and peer table spec §6 names.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/diameter-go/diameter/internal/log"
)

// NodeConfig is the root configuration document (spec §6 "Configuration
// surface").
type NodeConfig struct {
	Node    NodeIdentity   `mapstructure:"node" validate:"required"`
	Listen  ListenConfig   `mapstructure:"listen"`
	Peers   []PeerConfig   `mapstructure:"peers" validate:"dive"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Log     log.LoggerConfig `mapstructure:"log"`
}

// NodeIdentity is the node's own Diameter-Identity and realm.
type NodeIdentity struct {
	OriginHost  string `mapstructure:"origin_host" validate:"required,fqdn"`
	OriginRealm string `mapstructure:"origin_realm" validate:"required"`
}

// ListenConfig configures the inbound listener.
type ListenConfig struct {
	Address string        `mapstructure:"address"`
	Port    int           `mapstructure:"port" validate:"min=0,max=65535"`
	TLS     bool          `mapstructure:"tls"`
	Cea     time.Duration `mapstructure:"cea_timeout"`
	Idle    time.Duration `mapstructure:"idle_timeout"`
	Dwa     time.Duration `mapstructure:"dwa_timeout"`
	Request time.Duration `mapstructure:"request_timeout"`
}

// PeerConfig declares one statically-configured peer (spec §3 "Peer").
type PeerConfig struct {
	HostIdentity     string        `mapstructure:"host_identity" validate:"required,fqdn"`
	Realm            string        `mapstructure:"realm" validate:"required"`
	Addresses        []string      `mapstructure:"addresses" validate:"required,min=1"`
	Port             int           `mapstructure:"port" validate:"min=1,max=65535"`
	Transport        string        `mapstructure:"transport" validate:"oneof=tcp sctp"`
	Persistent       bool          `mapstructure:"persistent"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
}

// MetricsConfig toggles the prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

var validate = validator.New()

// Load reads and validates a NodeConfig from path using fs (an afero
// filesystem, so callers can substitute an in-memory fs in tests).
func Load(fs afero.Fs, path string) (*NodeConfig, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	applyDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("listen.port", 3868)
	v.SetDefault("listen.cea_timeout", 3*time.Second)
	v.SetDefault("listen.idle_timeout", 30*time.Second)
	v.SetDefault("listen.dwa_timeout", 30*time.Second)
	v.SetDefault("listen.request_timeout", 30*time.Second)
	v.SetDefault("metrics.address", ":9090")
}
