package config

import (
	"fmt"
	"strings"
	"time"
)

// Override forces field values for a known-problematic product page.
type Override struct {
	Title  string `mapstructure:"title"`
	Author string `mapstructure:"author"`
}

// Config holds leaderboard configuration.
type Config struct {
	URLs               []string            `mapstructure:"urls"`
	TargetDomain       string              `mapstructure:"target_domain"`
	ProductPathSegment string              `mapstructure:"product_path_segment"`
	FormatKeyword      string              `mapstructure:"format_keyword"`
	MediaCDNPrefix     string              `mapstructure:"media_cdn_prefix"`
	UserAgents         []string            `mapstructure:"user_agents"`
	Timeout            time.Duration       `mapstructure:"timeout"`
	MaxBodySize        int                 `mapstructure:"max_body_size"`
	RespectRobotsTxt   bool                `mapstructure:"respect_robots_txt"`
	RateLimitMin       time.Duration       `mapstructure:"rate_limit_min"`
	RateLimitMax       time.Duration       `mapstructure:"rate_limit_max"`
	ItemMaxAttempts    int                 `mapstructure:"item_max_attempts"`
	ItemRetryBase      time.Duration       `mapstructure:"item_retry_base"`
	ItemRetryMax       time.Duration       `mapstructure:"item_retry_max"`
	BatchMaxAttempts   int                 `mapstructure:"batch_max_attempts"`
	BatchRetryBase     time.Duration       `mapstructure:"batch_retry_base"`
	BatchRetryMax      time.Duration       `mapstructure:"batch_retry_max"`
	DataDir            string              `mapstructure:"data_dir"`
	ExportCSV          bool                `mapstructure:"export_csv"`
	DedupeCacheSize    int                 `mapstructure:"dedupe_cache_size"`
	Overrides          map[string]Override `mapstructure:"overrides"`
	ScheduleHourUTC    int                 `mapstructure:"schedule_hour_utc"`
	HTTPAddr           string              `mapstructure:"http_addr"`
	MetricsAddr        string              `mapstructure:"metrics_addr"`
	PostgresDSN        string              `mapstructure:"postgres_dsn"`
	Verbose            bool                `mapstructure:"verbose"`
}

// DefaultUserAgents is the identity pool drawn from for each fetch.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// DefaultURLs is the tracked list used when no list is configured.
var DefaultURLs = []string{
	"https://www.amazon.com/NUTCRANKR-Dan-Baltic/dp/195189779X",
	"https://www.amazon.com/Finally-Some-Good-Delicious-Tacos/dp/1790356229",
	"https://www.amazon.com/Improvidence-David-Herod/dp/B0CWCF7J13",
	"https://www.amazon.com/INCEL-Novel-ARX-Han/dp/B0CJLCZVCG",
	"https://www.amazon.com/dp/B0BRC7Z2Q9",
	"https://www.amazon.com/Eggplant-Ogden-Nesmer/dp/B09MJBNL7X",
	"https://www.amazon.com/Tower-Jack-BC/dp/0645928208",
	"https://www.amazon.com/Mixtape-Hyperborea-Adem-Luz-Rienspects/dp/B0BW32CX2G",
	"https://www.amazon.com/Book-Void-Sun-Lion-Serpent-feet-Christ/dp/B09JJFF82K",
}

// DefaultConfig returns conservative defaults for the tracked storefront.
func DefaultConfig() *Config {
	return &Config{
		URLs:               append([]string(nil), DefaultURLs...),
		TargetDomain:       "amazon.com",
		ProductPathSegment: "/dp/",
		FormatKeyword:      "paperback",
		MediaCDNPrefix:     "https://m.media-amazon.com/images/",
		UserAgents:         append([]string(nil), DefaultUserAgents...),
		Timeout:            30 * time.Second,
		MaxBodySize:        10 * 1024 * 1024,
		RespectRobotsTxt:   false,
		RateLimitMin:       3 * time.Second,
		RateLimitMax:       10 * time.Second,
		ItemMaxAttempts:    3,
		ItemRetryBase:      2 * time.Second,
		ItemRetryMax:       30 * time.Second,
		BatchMaxAttempts:   3,
		BatchRetryBase:     2 * time.Second,
		BatchRetryMax:      time.Minute,
		DataDir:            "data",
		ExportCSV:          false,
		DedupeCacheSize:    256,
		Overrides: map[string]Override{
			"B09JJFF82K": {Author: "Frater Asemlen"},
		},
		ScheduleHourUTC: 0,
		HTTPAddr:        ":3000",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TargetDomain) == "" {
		return fmt.Errorf("target domain cannot be empty")
	}
	if strings.TrimSpace(c.ProductPathSegment) == "" {
		return fmt.Errorf("product path segment cannot be empty")
	}
	if strings.TrimSpace(c.FormatKeyword) == "" {
		return fmt.Errorf("format keyword cannot be empty")
	}
	if len(c.UserAgents) == 0 {
		return fmt.Errorf("user agent pool cannot be empty")
	}
	for i, ua := range c.UserAgents {
		if strings.TrimSpace(ua) == "" {
			return fmt.Errorf("user agent %d is empty", i)
		}
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size cannot be negative")
	}
	if c.RateLimitMin < 0 {
		return fmt.Errorf("rate limit min cannot be negative")
	}
	if c.RateLimitMax < c.RateLimitMin {
		return fmt.Errorf("rate limit max (%s) cannot be below rate limit min (%s)", c.RateLimitMax, c.RateLimitMin)
	}
	if c.ItemMaxAttempts <= 0 {
		return fmt.Errorf("item max attempts must be positive")
	}
	if c.ItemRetryBase < 0 {
		return fmt.Errorf("item retry base cannot be negative")
	}
	if c.ItemRetryMax > 0 && c.ItemRetryBase > c.ItemRetryMax {
		return fmt.Errorf("item retry base (%s) cannot exceed item retry max (%s)", c.ItemRetryBase, c.ItemRetryMax)
	}
	if c.BatchMaxAttempts <= 0 {
		return fmt.Errorf("batch max attempts must be positive")
	}
	if c.BatchRetryBase < 0 {
		return fmt.Errorf("batch retry base cannot be negative")
	}
	if c.BatchRetryMax > 0 && c.BatchRetryBase > c.BatchRetryMax {
		return fmt.Errorf("batch retry base (%s) cannot exceed batch retry max (%s)", c.BatchRetryBase, c.BatchRetryMax)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	if c.DedupeCacheSize <= 0 {
		return fmt.Errorf("dedupe cache size must be positive")
	}
	if c.ScheduleHourUTC < 0 || c.ScheduleHourUTC > 23 {
		return fmt.Errorf("schedule hour must be within 0-23")
	}

	return nil
}
