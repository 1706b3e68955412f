package config

import "time"

type AppConfig struct {
	DBDriver   string          `yaml:"db_driver" env:"SKIMO_DB_DRIVER" env-default:"sqlite"`
	DBURL      string          `yaml:"db_url" env:"SKIMO_DB_URL" env-default:""`
	DBPath     string          `yaml:"db_path" env:"SKIMO_DB_PATH" env-default:"data/skimo.db"`
	ListenAddr string          `yaml:"listen_addr" env:"SKIMO_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	AppEnv     string          `yaml:"app_env" env:"SKIMO_APP_ENV"`
	Reports    ReportsConfig   `yaml:"reports"`
	Reaper     ReaperConfig    `yaml:"reaper"`
	Broadcast  BroadcastConfig `yaml:"broadcast"`
	Auth       AuthConfig      `yaml:"auth"`
}

type ReportsConfig struct {
	// StaleGrace is how long a report may sit unreviewed before the reaper
	// demotes it to stale.
	StaleGrace time.Duration `yaml:"stale_grace" env:"SKIMO_REPORTS_STALE_GRACE" env-default:"5m"`
}

type ReaperConfig struct {
	Enabled bool `yaml:"enabled" env:"SKIMO_REAPER_ENABLED" env-default:"true"`
	// Spec is a cron expression with seconds granularity.
	Spec string `yaml:"spec" env:"SKIMO_REAPER_SPEC" env-default:"@every 60s"`
}

type BroadcastConfig struct {
	// SubscriberBuffer is the per-subscriber event buffer; a viewer that
	// falls this far behind is dropped and must resubscribe and refetch.
	SubscriberBuffer int `yaml:"subscriber_buffer" env:"SKIMO_BROADCAST_BUFFER" env-default:"64"`
}

type AuthConfig struct {
	// KeysPath points at the yaml access-key file provisioned per venue.
	KeysPath string `yaml:"keys_path" env:"SKIMO_AUTH_KEYS_PATH" env-default:"data/access_keys.yaml"`
}

const minStaleGrace = 30 * time.Second

func (c *AppConfig) EffectiveStaleGrace() time.Duration {
	if c == nil || c.Reports.StaleGrace <= 0 {
		return 5 * time.Minute
	}
	if c.Reports.StaleGrace < minStaleGrace {
		return minStaleGrace
	}
	return c.Reports.StaleGrace
}
