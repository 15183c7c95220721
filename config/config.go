package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Battle   BattleConfig   `mapstructure:"battle"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Reward   RewardConfig   `mapstructure:"reward"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AdminAllowlist holds the IPs or CIDRs allowed on /admin routes.
	// An empty list allows everyone.
	AdminAllowlist []string `mapstructure:"admin_allowlist"`
	// AllowedOrigins lists the WebSocket origins that are permitted.
	// An empty slice allows all origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"` // YAML species/move/item catalog
}

// BattleConfig holds timing and policy knobs for battle sessions.
type BattleConfig struct {
	ForcedSwitchTimeout time.Duration `mapstructure:"forced_switch_timeout"`
	ShiftSwitchTimeout  time.Duration `mapstructure:"shift_switch_timeout"`
	ShiftMode           bool          `mapstructure:"shift_mode"`
	DecisionTimeout     time.Duration `mapstructure:"decision_timeout"`
	AIThinkDelay        time.Duration `mapstructure:"ai_think_delay"`
	StoreTimeout        time.Duration `mapstructure:"store_timeout"`
	EndedGracePeriod    time.Duration `mapstructure:"ended_grace_period"`
	WildPassive         bool          `mapstructure:"wild_passive"`
}

// Tier maps a minimum distinct-species-caught count to a multiplier.
type Tier struct {
	MinCaught  int     `mapstructure:"min_caught"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// CaptureConfig holds the data tables behind the capture formula.
type CaptureConfig struct {
	EnvironmentTiers []Tier        `mapstructure:"environment_tiers"`
	CriticalTiers    []Tier        `mapstructure:"critical_tiers"`
	CapturePower     int           `mapstructure:"capture_power"` // 100..130
	BoxCapacity      int           `mapstructure:"box_capacity"`
	PendingRetry     time.Duration `mapstructure:"pending_retry"`
}

type RewardConfig struct {
	WildPayoutPerLevel int            `mapstructure:"wild_payout_per_level"`
	ClassPayouts       map[string]int `mapstructure:"class_payouts"`
	NoFaintBonus       float64        `mapstructure:"no_faint_bonus"`
	FastTurnThreshold  int            `mapstructure:"fast_turn_threshold"`
	FastTurnBonus      float64        `mapstructure:"fast_turn_bonus"`
	CurrencyItemID     string         `mapstructure:"currency_item_id"`
	MoveReplacement    string         `mapstructure:"move_replacement"` // pending | replace_oldest
	MaxLevel           int            `mapstructure:"max_level"`
}

// DefaultEnvironmentTiers is the dark-grass table: fewer species caught,
// harder captures in special terrain.
func DefaultEnvironmentTiers() []Tier {
	return []Tier{
		{MinCaught: 0, Multiplier: 0.3},
		{MinCaught: 31, Multiplier: 0.5},
		{MinCaught: 151, Multiplier: 0.7},
		{MinCaught: 301, Multiplier: 0.8},
		{MinCaught: 451, Multiplier: 0.9},
		{MinCaught: 601, Multiplier: 1.0},
	}
}

// DefaultCriticalTiers: critical captures are impossible below 31 species.
func DefaultCriticalTiers() []Tier {
	return []Tier{
		{MinCaught: 0, Multiplier: 0},
		{MinCaught: 31, Multiplier: 0.5},
		{MinCaught: 151, Multiplier: 1.0},
		{MinCaught: 301, Multiplier: 1.5},
		{MinCaught: 451, Multiplier: 2.0},
		{MinCaught: 601, Multiplier: 2.5},
	}
}

// Default returns a Config populated with the same defaults Load applies.
func Default() Config {
	return Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Mode: "memory", SQLitePath: "./data/battle.db", MySQLMaxOpen: 50, MySQLMaxIdle: 10, MySQLMaxLife: time.Hour},
		Cache:    CacheConfig{LocalGCInterval: 30 * time.Second, LocalPubSubBuf: 256},
		Security: SecurityConfig{TokenTTL: 24 * time.Hour, RateLimitRPS: 20, RateLimitBurst: 40},
		Catalog:  CatalogConfig{Path: "./data/catalog.yaml"},
		Battle: BattleConfig{
			ForcedSwitchTimeout: 30 * time.Second,
			ShiftSwitchTimeout:  10 * time.Second,
			DecisionTimeout:     90 * time.Second,
			AIThinkDelay:        800 * time.Millisecond,
			StoreTimeout:        5 * time.Second,
			EndedGracePeriod:    time.Minute,
		},
		Capture: CaptureConfig{
			EnvironmentTiers: DefaultEnvironmentTiers(),
			CriticalTiers:    DefaultCriticalTiers(),
			CapturePower:     100,
			BoxCapacity:      30 * 24,
			PendingRetry:     30 * time.Second,
		},
		Reward: RewardConfig{
			WildPayoutPerLevel: 0,
			ClassPayouts:       map[string]int{"youngster": 16, "ace_trainer": 60, "gym_leader": 100},
			NoFaintBonus:       0.1,
			FastTurnThreshold:  5,
			FastTurnBonus:      0.1,
			CurrencyItemID:     "money",
			MoveReplacement:    "pending",
			MaxLevel:           100,
		},
	}
}

// Load reads config from the given YAML file path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	d := Default()
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", d.Database.Mode)
	v.SetDefault("database.sqlite_path", d.Database.SQLitePath)
	v.SetDefault("database.mysql_max_open", d.Database.MySQLMaxOpen)
	v.SetDefault("database.mysql_max_idle", d.Database.MySQLMaxIdle)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", d.Cache.LocalPubSubBuf)
	v.SetDefault("security.token_ttl", "24h")
	v.SetDefault("security.rate_limit_rps", d.Security.RateLimitRPS)
	v.SetDefault("security.rate_limit_burst", d.Security.RateLimitBurst)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("battle.forced_switch_timeout", "30s")
	v.SetDefault("battle.shift_switch_timeout", "10s")
	v.SetDefault("battle.decision_timeout", "90s")
	v.SetDefault("battle.ai_think_delay", "800ms")
	v.SetDefault("battle.store_timeout", "5s")
	v.SetDefault("battle.ended_grace_period", "1m")
	v.SetDefault("capture.capture_power", d.Capture.CapturePower)
	v.SetDefault("capture.box_capacity", d.Capture.BoxCapacity)
	v.SetDefault("capture.pending_retry", "30s")
	v.SetDefault("reward.wild_payout_per_level", d.Reward.WildPayoutPerLevel)
	v.SetDefault("reward.class_payouts", d.Reward.ClassPayouts)
	v.SetDefault("reward.no_faint_bonus", d.Reward.NoFaintBonus)
	v.SetDefault("reward.fast_turn_threshold", d.Reward.FastTurnThreshold)
	v.SetDefault("reward.fast_turn_bonus", d.Reward.FastTurnBonus)
	v.SetDefault("reward.currency_item_id", d.Reward.CurrencyItemID)
	v.SetDefault("reward.move_replacement", d.Reward.MoveReplacement)
	v.SetDefault("reward.max_level", d.Reward.MaxLevel)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	// Tier tables are lists; viper defaults do not merge into slices.
	if len(cfg.Capture.EnvironmentTiers) == 0 {
		cfg.Capture.EnvironmentTiers = d.Capture.EnvironmentTiers
	}
	if len(cfg.Capture.CriticalTiers) == 0 {
		cfg.Capture.CriticalTiers = d.Capture.CriticalTiers
	}
	return cfg, nil
}
