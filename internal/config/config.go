// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jason-s-yu/pikit/internal/detector"
	"github.com/jason-s-yu/pikit/internal/hunt"
	"github.com/jason-s-yu/pikit/internal/quests"
	"github.com/jason-s-yu/pikit/internal/rewards"
	"github.com/jason-s-yu/pikit/internal/storage"
)

// Config is the process configuration, read from the environment (and a .env file
// when the binary imports godotenv/autoload).
type Config struct {
	Env  string `env:"PIKIT_ENV" envDefault:"dev"`
	Port int    `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	EventQueueName string `env:"EVENT_QUEUE_NAME" envDefault:"pikit_match_events"`

	DetectorURL           string        `env:"DETECTOR_URL" envDefault:"http://localhost:5000/detect"`
	DetectorTimeout       time.Duration `env:"DETECTOR_TIMEOUT" envDefault:"30s"`
	DetectorMinConfidence float64       `env:"DETECTOR_MIN_CONFIDENCE" envDefault:"0"`

	DefaultCountdown  time.Duration `env:"DEFAULT_COUNTDOWN" envDefault:"5s"`
	MaxCountdown      time.Duration `env:"MAX_COUNTDOWN" envDefault:"60s"`
	DefaultObjectList string        `env:"DEFAULT_OBJECT_LIST" envDefault:"coco"`
	PoolCacheTTL      time.Duration `env:"POOL_CACHE_TTL" envDefault:"10m"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1s"`

	RewardBonusRate   int `env:"REWARD_BONUS_RATE" envDefault:"10"`
	RewardBonusCap    int `env:"REWARD_BONUS_CAP" envDefault:"50"`
	RewardCoinDivisor int `env:"REWARD_COIN_DIVISOR" envDefault:"2"`
	DailyQuestPoints  int `env:"DAILY_QUEST_POINTS" envDefault:"10"`

	S3Bucket          string `env:"S3_BUCKET"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION" envDefault:"auto"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3PublicURL       string `env:"S3_PUBLIC_URL"`

	// TokenExpireTime is a Go duration, or "never".
	TokenExpireTime string   `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	HistorianBatchSize int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	HistorianFlush     time.Duration `env:"HISTORIAN_FLUSH" envDefault:"500ms"`
}

// Load parses the environment into a Config and checks cross-field constraints.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DefaultCountdown < 0 || c.MaxCountdown < c.DefaultCountdown:
		return fmt.Errorf("config: DEFAULT_COUNTDOWN must be within [0, MAX_COUNTDOWN]")
	case c.RewardCoinDivisor <= 0:
		return fmt.Errorf("config: REWARD_COIN_DIVISOR must be positive")
	case c.HistorianBatchSize <= 0:
		return fmt.Errorf("config: HISTORIAN_BATCH_SIZE must be positive")
	}
	return nil
}

func (c *Config) Dev() bool {
	return c.Env == "dev"
}

func (c *Config) Hunt() hunt.Config {
	h := hunt.DefaultConfig()
	h.DefaultObjectList = c.DefaultObjectList
	h.DefaultCountdown = c.DefaultCountdown
	h.MaxCountdown = c.MaxCountdown
	return h
}

func (c *Config) Rewards() rewards.Config {
	return rewards.Config{
		BonusRate:   c.RewardBonusRate,
		BonusCap:    c.RewardBonusCap,
		CoinDivisor: c.RewardCoinDivisor,
	}
}

func (c *Config) Quests() quests.Config {
	return quests.Config{ObjectList: c.DefaultObjectList, RewardPoints: c.DailyQuestPoints}
}

func (c *Config) Detector() detector.Config {
	return detector.Config{URL: c.DetectorURL, Timeout: c.DetectorTimeout, MinConfidence: c.DetectorMinConfidence}
}

// Storage returns the bucket settings and whether a bucket is configured at all.
func (c *Config) Storage() (storage.Config, bool) {
	return storage.Config{
		Bucket:          c.S3Bucket,
		Endpoint:        c.S3Endpoint,
		Region:          c.S3Region,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		PublicBaseURL:   c.S3PublicURL,
	}, c.S3Bucket != ""
}
