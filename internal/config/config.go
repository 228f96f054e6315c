package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Trends     TrendsConfig     `yaml:"trends" mapstructure:"trends"`
	USDA       USDAConfig       `yaml:"usda" mapstructure:"usda"`
	Tiger      TigerConfig      `yaml:"tiger" mapstructure:"tiger"`
	Collect    CollectConfig    `yaml:"collect" mapstructure:"collect"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Shops      ShopsConfig      `yaml:"shops" mapstructure:"shops"`
	Map        MapConfig        `yaml:"map" mapstructure:"map"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	CacheTTLHrs int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// GoogleConfig holds Google Maps Platform settings.
type GoogleConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	MaxPages      int     `yaml:"max_pages" mapstructure:"max_pages"`
}

// OverpassConfig holds OpenStreetMap Overpass API settings.
type OverpassConfig struct {
	URL           string  `yaml:"url" mapstructure:"url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TrendsConfig holds Google Trends settings.
type TrendsConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Geo       string `yaml:"geo" mapstructure:"geo"`
	Timeframe string `yaml:"timeframe" mapstructure:"timeframe"`
	Language  string `yaml:"language" mapstructure:"language"`
	TZOffset  int    `yaml:"tz_offset" mapstructure:"tz_offset"`
}

// USDAConfig holds USDA ERS API settings.
type USDAConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	State   string `yaml:"state" mapstructure:"state"`
	Year    int    `yaml:"year" mapstructure:"year"`
}

// TigerConfig configures TIGER/Line shapefile sources.
type TigerConfig struct {
	Year           int               `yaml:"year" mapstructure:"year"`
	StateFIPS      string            `yaml:"state_fips" mapstructure:"state_fips"`
	BaseURL        string            `yaml:"base_url" mapstructure:"base_url"`
	TempDir        string            `yaml:"temp_dir" mapstructure:"temp_dir"`
	BlockShapefile string            `yaml:"block_shapefile" mapstructure:"block_shapefile"`
	CentersCSV     string            `yaml:"centers_csv" mapstructure:"centers_csv"`
	CentroidOrder  []string          `yaml:"centroid_order" mapstructure:"centroid_order"`
	CountyOverride map[string]string `yaml:"county_overrides" mapstructure:"county_overrides"`
}

// CollectConfig configures the collect stages.
type CollectConfig struct {
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	SearchRadiusM    int     `yaml:"search_radius_m" mapstructure:"search_radius_m"`
	WalkingLimitMins float64 `yaml:"walking_limit_mins" mapstructure:"walking_limit_mins"`
	DrivingLimitMins float64 `yaml:"driving_limit_mins" mapstructure:"driving_limit_mins"`
	TransitRadiusM   int     `yaml:"transit_radius_m" mapstructure:"transit_radius_m"`
	WalkNetworkDistM int     `yaml:"walk_network_dist_m" mapstructure:"walk_network_dist_m"`
	Checkpoint       bool    `yaml:"checkpoint" mapstructure:"checkpoint"`
	DLQMaxRetries    int     `yaml:"dlq_max_retries" mapstructure:"dlq_max_retries"`
	ProgressEvery    int     `yaml:"progress_every" mapstructure:"progress_every"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ScoringConfig holds the success score weights. Weights sum to 1.
type ScoringConfig struct {
	MosqueWeight        float64 `yaml:"mosque_weight" mapstructure:"mosque_weight"`
	DemandWeight        float64 `yaml:"demand_weight" mapstructure:"demand_weight"`
	AffordabilityWeight float64 `yaml:"affordability_weight" mapstructure:"affordability_weight"`
	PedestrianWeight    float64 `yaml:"pedestrian_weight" mapstructure:"pedestrian_weight"`
	SaturationWeight    float64 `yaml:"saturation_weight" mapstructure:"saturation_weight"`
	TopN                int     `yaml:"top_n" mapstructure:"top_n"`
}

// ClassifierConfig configures random forest training.
type ClassifierConfig struct {
	Trees           int     `yaml:"trees" mapstructure:"trees"`
	MaxDepth        int     `yaml:"max_depth" mapstructure:"max_depth"`
	MinSamplesSplit int     `yaml:"min_samples_split" mapstructure:"min_samples_split"`
	MinSamplesLeaf  int     `yaml:"min_samples_leaf" mapstructure:"min_samples_leaf"`
	TestFraction    float64 `yaml:"test_fraction" mapstructure:"test_fraction"`
	Seed            uint64  `yaml:"seed" mapstructure:"seed"`
	LabelRadiusKM   float64 `yaml:"label_radius_km" mapstructure:"label_radius_km"`
	ModelPath       string  `yaml:"model_path" mapstructure:"model_path"`
}

// ShopsConfig configures the known-shop survey.
type ShopsConfig struct {
	Keyword      string `yaml:"keyword" mapstructure:"keyword"`
	RadiusM      int    `yaml:"radius_m" mapstructure:"radius_m"`
	PointsFile   string `yaml:"points_file" mapstructure:"points_file"`
	MinSuccesses int    `yaml:"min_successes" mapstructure:"min_successes"`
}

// MapConfig configures map rendering.
type MapConfig struct {
	CenterLat float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon float64 `yaml:"center_lon" mapstructure:"center_lon"`
	Zoom      int     `yaml:"zoom" mapstructure:"zoom"`
	Caption   string  `yaml:"caption" mapstructure:"caption"`
}

// RetryConfig configures outbound API retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the map server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures collection health alerts.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	RunFailureThreshold   float64 `yaml:"run_failure_threshold" mapstructure:"run_failure_threshold"`
	TractFailureThreshold float64 `yaml:"tract_failure_threshold" mapstructure:"tract_failure_threshold"`
	DLQDepthThreshold     int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; existing environment variables win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Also accept the bare GOOGLE_MAPS_API_KEY variable.
	_ = v.BindEnv("google.key", "COMPASS_GOOGLE_KEY", "GOOGLE_MAPS_API_KEY")
	_ = v.BindEnv("usda.key", "COMPASS_USDA_KEY", "USDA_API_KEY")

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "compass.db")
	v.SetDefault("store.cache_ttl_hours", 24*30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.run_failure_threshold", 0.2)
	v.SetDefault("monitoring.tract_failure_threshold", 0.1)
	v.SetDefault("monitoring.dlq_depth_threshold", 50)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("google.rate_per_second", 5)
	v.SetDefault("google.max_pages", 1)
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.rate_per_second", 1)
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("trends.base_url", "https://trends.google.com")
	v.SetDefault("trends.geo", "US")
	v.SetDefault("trends.timeframe", "2018-01-01 2023-12-31")
	v.SetDefault("trends.language", "en-US")
	v.SetDefault("trends.tz_offset", 360)
	v.SetDefault("usda.base_url", "https://api.ers.usda.gov/data/arms/surveydata")
	v.SetDefault("usda.state", "MI")
	v.SetDefault("usda.year", 2023)
	v.SetDefault("tiger.year", 2024)
	v.SetDefault("tiger.state_fips", "26")
	v.SetDefault("tiger.base_url", "https://www2.census.gov/geo/tiger")
	v.SetDefault("tiger.temp_dir", "/tmp/compass-tiger")
	v.SetDefault("tiger.centroid_order", []string{"block", "census"})
	v.SetDefault("collect.concurrency", 2)
	v.SetDefault("collect.search_radius_m", 5000)
	v.SetDefault("collect.walking_limit_mins", 15)
	v.SetDefault("collect.driving_limit_mins", 10)
	v.SetDefault("collect.transit_radius_m", 1609)
	v.SetDefault("collect.walk_network_dist_m", 500)
	v.SetDefault("collect.checkpoint", true)
	v.SetDefault("collect.dlq_max_retries", 3)
	v.SetDefault("collect.progress_every", 25)
	v.SetDefault("collect.breaker_threshold", 5)
	v.SetDefault("collect.breaker_reset_secs", 60)
	v.SetDefault("scoring.mosque_weight", 0.30)
	v.SetDefault("scoring.demand_weight", 0.25)
	v.SetDefault("scoring.affordability_weight", 0.20)
	v.SetDefault("scoring.pedestrian_weight", 0.15)
	v.SetDefault("scoring.saturation_weight", 0.10)
	v.SetDefault("scoring.top_n", 10)
	v.SetDefault("classifier.trees", 100)
	v.SetDefault("classifier.max_depth", 8)
	v.SetDefault("classifier.min_samples_split", 2)
	v.SetDefault("classifier.min_samples_leaf", 1)
	v.SetDefault("classifier.test_fraction", 0.2)
	v.SetDefault("classifier.seed", 42)
	v.SetDefault("classifier.label_radius_km", 2.0)
	v.SetDefault("classifier.model_path", "success_model.json")
	v.SetDefault("shops.keyword", "Yemeni coffee")
	v.SetDefault("shops.radius_m", 30000)
	v.SetDefault("shops.min_successes", 3)
	v.SetDefault("map.center_lat", 42.3)
	v.SetDefault("map.center_lon", -83.1)
	v.SetDefault("map.zoom", 9)
	v.SetDefault("map.caption", "Yemeni Coffee Shop Success Score")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys a command needs are present.
func (c *Config) Validate(stage string) error {
	var missing []string
	switch stage {
	case "places", "shops":
		if c.Google.Key == "" {
			missing = append(missing, "google.key (or GOOGLE_MAPS_API_KEY)")
		}
	case "rent":
		if c.USDA.Key == "" {
			missing = append(missing, "usda.key (or USDA_API_KEY)")
		}
	case "store":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	}
	if c.Collect.Concurrency < 1 {
		missing = append(missing, "collect.concurrency >= 1")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: %s requires %s", stage, strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
