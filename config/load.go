package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. LEADERBOARD_DATA_DIR.
const EnvPrefix = "LEADERBOARD"

// Load builds a Config from defaults, an optional file, and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Overrides = normalizeOverrides(cfg.Overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("urls", d.URLs)
	v.SetDefault("target_domain", d.TargetDomain)
	v.SetDefault("product_path_segment", d.ProductPathSegment)
	v.SetDefault("format_keyword", d.FormatKeyword)
	v.SetDefault("media_cdn_prefix", d.MediaCDNPrefix)
	v.SetDefault("user_agents", d.UserAgents)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max_body_size", d.MaxBodySize)
	v.SetDefault("respect_robots_txt", d.RespectRobotsTxt)
	v.SetDefault("rate_limit_min", d.RateLimitMin)
	v.SetDefault("rate_limit_max", d.RateLimitMax)
	v.SetDefault("item_max_attempts", d.ItemMaxAttempts)
	v.SetDefault("item_retry_base", d.ItemRetryBase)
	v.SetDefault("item_retry_max", d.ItemRetryMax)
	v.SetDefault("batch_max_attempts", d.BatchMaxAttempts)
	v.SetDefault("batch_retry_base", d.BatchRetryBase)
	v.SetDefault("batch_retry_max", d.BatchRetryMax)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("export_csv", d.ExportCSV)
	v.SetDefault("dedupe_cache_size", d.DedupeCacheSize)
	v.SetDefault("schedule_hour_utc", d.ScheduleHourUTC)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("postgres_dsn", d.PostgresDSN)
	v.SetDefault("verbose", d.Verbose)

	overrides := make(map[string]any, len(d.Overrides))
	for id, o := range d.Overrides {
		overrides[id] = map[string]any{"title": o.Title, "author": o.Author}
	}
	v.SetDefault("overrides", overrides)
}

// normalizeOverrides upper-cases product identifiers; viper lower-cases map keys.
func normalizeOverrides(in map[string]Override) map[string]Override {
	out := make(map[string]Override, len(in))
	for id, o := range in {
		out[strings.ToUpper(strings.TrimSpace(id))] = o
	}
	return out
}
