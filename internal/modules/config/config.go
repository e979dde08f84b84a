package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	marketDataKeyENV  = "MARKET_DATA_API_KEY"
	brokerKeyENV      = "BROKER_API_KEY"
	brokerSecretENV   = "BROKER_API_SECRET"
)

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB     string `yaml:"db_dsn"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	MarketData struct {
		BaseURL   string `yaml:"base_url"`
		StreamURL string `yaml:"stream_url"`
		APIKey    string `yaml:"api_key"`
	} `yaml:"market_data"`

	Broker struct {
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"broker"`

	// Scheduler cadences. Scan and monitor run on independent intervals; a
	// run still in progress when its next trigger fires is skipped.
	ScanInterval    time.Duration `yaml:"scan_interval"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	// Daily reset, cron spec in local market time (default: weekdays 09:30).
	DailyResetCron string `yaml:"daily_reset_cron"`
	Timezone       string `yaml:"timezone"`
	// Per-symbol budget for gateway calls inside a cycle.
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`

	Watchlist []string `yaml:"watchlist"`

	Scanner ScannerConfig `yaml:"scanner"`
	Entry   EntryConfig   `yaml:"entry"`
	Risk    RiskConfig    `yaml:"risk"`
	Exit    ExitConfig    `yaml:"exit"`

	HealthInterval time.Duration `yaml:"health_interval"`
	Debug          bool          `yaml:"debug"`
}

// ScannerConfig holds mover thresholds and composite score weights. Weights
// must sum to 1; each sub-score contributes weight*100 points at most.
type ScannerConfig struct {
	LookbackMinutes  int     `yaml:"lookback_minutes"`
	MoveThresholdPct float64 `yaml:"move_threshold_pct"`
	VolumeRatioMin   float64 `yaml:"volume_ratio_min"`

	WeightMomentum    float64 `yaml:"weight_momentum"`
	WeightVolume      float64 `yaml:"weight_volume"`
	WeightTechnical   float64 `yaml:"weight_technical"`
	WeightTrend       float64 `yaml:"weight_trend"`
	WeightVolumeTrend float64 `yaml:"weight_volume_trend"`

	RSIPeriod int `yaml:"rsi_period"`
	NewsLimit int `yaml:"news_limit"`
}

type EntryConfig struct {
	HighConfidence float64 `yaml:"high_confidence"` // options above this
	MidConfidence  float64 `yaml:"mid_confidence"`  // equity from here to high

	// Option leg selection.
	OTMSteps  int     `yaml:"otm_steps"` // 0 = ATM
	MinDTE    int     `yaml:"min_dte"`
	MaxDTE    int     `yaml:"max_dte"`
	StopPct   float64 `yaml:"stop_pct"`   // stop distance from entry, e.g. 3.0
	TargetPct float64 `yaml:"target_pct"` // target distance from entry, e.g. 6.0
}

// RiskConfig seeds the runtime-mutable limits read by the risk manager.
type RiskConfig struct {
	MaxDailyLoss          float64 `yaml:"max_daily_loss"`
	MaxOpenPositions      int     `yaml:"max_open_positions"`
	BaseAllocationPct     float64 `yaml:"base_allocation_pct"`
	MaxConfidenceMult     float64 `yaml:"max_confidence_mult"`
	MaxPremiumPerContract float64 `yaml:"max_premium_per_contract"`
	MinDTE                int     `yaml:"min_dte"`
	MaxDTE                int     `yaml:"max_dte"`
}

type ExitConfig struct {
	ProfitTargetPct    float64       `yaml:"profit_target_pct"`
	StopLossPct        float64       `yaml:"stop_loss_pct"`
	SignificantMovePct float64       `yaml:"significant_move_pct"`
	ForceCloseDTE      int           `yaml:"force_close_dte"`
	AlertDedupWindow   time.Duration `yaml:"alert_dedup_window"`
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		ScanInterval:    durationFromEnv("SCAN_INTERVAL", "5m"),
		MonitorInterval: durationFromEnv("MONITOR_INTERVAL", "1m"),
		DailyResetCron:  getenvDefault("DAILY_RESET_CRON", "0 30 9 * * 1-5"),
		Timezone:        getenvDefault("MARKET_TIMEZONE", "America/New_York"),
		GatewayTimeout:  durationFromEnv("GATEWAY_TIMEOUT", "10s"),
		HealthInterval:  durationFromEnv("HEALTH_INTERVAL", "30m"),

		Scanner: ScannerConfig{
			LookbackMinutes:  intFromEnv("SCAN_LOOKBACK_MINUTES", 15),
			MoveThresholdPct: floatFromEnv("MOVE_THRESHOLD_PCT", 1.5),
			VolumeRatioMin:   floatFromEnv("VOLUME_RATIO_MIN", 1.5),

			WeightMomentum:    0.30,
			WeightVolume:      0.20,
			WeightTechnical:   0.25,
			WeightTrend:       0.15,
			WeightVolumeTrend: 0.10,

			RSIPeriod: intFromEnv("RSI_PERIOD", 14),
			NewsLimit: intFromEnv("NEWS_LIMIT", 3),
		},
		Entry: EntryConfig{
			HighConfidence: floatFromEnv("HIGH_CONFIDENCE", 0.75),
			MidConfidence:  floatFromEnv("MID_CONFIDENCE", 0.60),
			OTMSteps:       intFromEnv("OTM_STEPS", 0),
			MinDTE:         intFromEnv("ENTRY_MIN_DTE", 30),
			MaxDTE:         intFromEnv("ENTRY_MAX_DTE", 45),
			StopPct:        floatFromEnv("STOP_PCT", 3.0),
			TargetPct:      floatFromEnv("TARGET_PCT", 6.0),
		},
		Risk: RiskConfig{
			MaxDailyLoss:          floatFromEnv("MAX_DAILY_LOSS", 1000),
			MaxOpenPositions:      intFromEnv("MAX_OPEN_POSITIONS", 5),
			BaseAllocationPct:     floatFromEnv("BASE_ALLOCATION_PCT", 5.0),
			MaxConfidenceMult:     floatFromEnv("MAX_CONFIDENCE_MULT", 1.5),
			MaxPremiumPerContract: floatFromEnv("MAX_PREMIUM_PER_CONTRACT", 500),
			MinDTE:                intFromEnv("RISK_MIN_DTE", 7),
			MaxDTE:                intFromEnv("RISK_MAX_DTE", 60),
		},
		Exit: ExitConfig{
			ProfitTargetPct:    floatFromEnv("PROFIT_TARGET_PCT", 20),
			StopLossPct:        floatFromEnv("STOP_LOSS_PCT", 10),
			SignificantMovePct: floatFromEnv("SIGNIFICANT_MOVE_PCT", 5),
			ForceCloseDTE:      intFromEnv("FORCE_CLOSE_DTE", 7),
			AlertDedupWindow:   durationFromEnv("ALERT_DEDUP_WINDOW", "30m"),
		},
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if k := os.Getenv(marketDataKeyENV); k != "" {
		config.MarketData.APIKey = k
	}
	if k := os.Getenv(brokerKeyENV); k != "" {
		config.Broker.APIKey = k
	}
	if s := os.Getenv(brokerSecretENV); s != "" {
		config.Broker.APISecret = s
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate applies the same range rules the control surface enforces on
// runtime limit updates.
func (c *Config) Validate() error {
	if c.ScanInterval < time.Minute {
		return fmt.Errorf("scan_interval %s below 1m", c.ScanInterval)
	}
	if c.MonitorInterval < 10*time.Second {
		return fmt.Errorf("monitor_interval %s below 10s", c.MonitorInterval)
	}
	if c.Entry.MidConfidence <= 0 || c.Entry.HighConfidence <= c.Entry.MidConfidence || c.Entry.HighConfidence > 1 {
		return fmt.Errorf("confidence thresholds out of order: mid=%.2f high=%.2f",
			c.Entry.MidConfidence, c.Entry.HighConfidence)
	}
	wsum := c.Scanner.WeightMomentum + c.Scanner.WeightVolume + c.Scanner.WeightTechnical +
		c.Scanner.WeightTrend + c.Scanner.WeightVolumeTrend
	if wsum < 0.999 || wsum > 1.001 {
		return fmt.Errorf("scanner weights must sum to 1, got %.3f", wsum)
	}
	for name, check := range map[string]bool{
		"max_daily_loss":      c.Risk.MaxDailyLoss >= 100 && c.Risk.MaxDailyLoss <= 100000,
		"max_open_positions":  c.Risk.MaxOpenPositions >= 1 && c.Risk.MaxOpenPositions <= 50,
		"base_allocation_pct": c.Risk.BaseAllocationPct > 0 && c.Risk.BaseAllocationPct <= 25,
		"max_confidence_mult": c.Risk.MaxConfidenceMult >= 1 && c.Risk.MaxConfidenceMult <= 3,
		"profit_target_pct":   c.Exit.ProfitTargetPct > 0 && c.Exit.ProfitTargetPct <= 100,
		"stop_loss_pct":       c.Exit.StopLossPct > 0 && c.Exit.StopLossPct <= 50,
		"force_close_dte":     c.Exit.ForceCloseDTE >= 0 && c.Exit.ForceCloseDTE <= 30,
	} {
		if !check {
			return fmt.Errorf("config value %s out of range", name)
		}
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
