package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance     BinanceConfig     `yaml:"binance"`
	Trading     TradingConfig     `yaml:"trading"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Risk        RiskConfig        `yaml:"risk"`
	Levels      LevelsConfig      `yaml:"levels"`
	Exit        ExitConfig        `yaml:"exit"`
	Contingency ContingencyConfig `yaml:"contingency"`
	Advisory    AdvisoryConfig    `yaml:"advisory"`
	Storage     StorageConfig     `yaml:"storage"`
	UI          UIConfig          `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols         []string `yaml:"symbols"`
	Interval        string   `yaml:"interval"`
	CandlesCount    int      `yaml:"candles_count"`
	IntervalSeconds int      `yaml:"interval_seconds"`
}

// StrategyConfig содержит настройки генератора сигналов
type StrategyConfig struct {
	SMAFast             int     `yaml:"sma_fast"`
	SMAMedium           int     `yaml:"sma_medium"`
	SMATrend            int     `yaml:"sma_trend"`
	RSIPeriod           int     `yaml:"rsi_period"`
	SeparationThreshold float64 `yaml:"separation_threshold"`
	ReversalRun         int     `yaml:"reversal_run"`
	CrossoverLookback   int     `yaml:"crossover_lookback"`
	Debug               DebugConfig `yaml:"debug"`
}

// DebugConfig явные переключатели ослабления проверок для тестирования.
// Каждая отключенная проверка фиксируется в логе.
type DebugConfig struct {
	DisableSeparation bool `yaml:"disable_separation"`
	DisablePattern    bool `yaml:"disable_pattern"`
	DisableMomentum   bool `yaml:"disable_momentum"`
}

// RiskConfig содержит настройки расчета размера позиции
type RiskConfig struct {
	RiskPerTrade   float64 `yaml:"risk_per_trade"`
	PipValuePerLot float64 `yaml:"pip_value_per_lot"`
	DefaultPipSize float64 `yaml:"default_pip_size"`
	YenPipSize     float64 `yaml:"yen_pip_size"`
	YenQuoted      []string `yaml:"yen_quoted"`
}

// LevelsConfig содержит настройки поиска уровней поддержки и сопротивления
type LevelsConfig struct {
	Window    int     `yaml:"window"`
	Tolerance float64 `yaml:"tolerance"`
}

// ExitConfig содержит настройки оценки выхода из позиции
type ExitConfig struct {
	DivergenceWindow int     `yaml:"divergence_window"`
	LevelTolerance   float64 `yaml:"level_tolerance"`
	ProfitTarget     ProfitTargetConfig `yaml:"profit_target"`
	// Precedence определяет порядок проверки, когда включена фиксированная цель:
	// "levels_first" или "profit_target_first"
	Precedence string `yaml:"precedence"`
}

// ProfitTargetConfig настройки фиксированной цели по прибыли
type ProfitTargetConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Multiple float64 `yaml:"multiple"`
}

// ContingencyConfig содержит настройки каскадного плана
type ContingencyConfig struct {
	MaxTrades int `yaml:"max_trades"`
}

// AdvisoryConfig содержит настройки внешнего консультационного сервиса
type AdvisoryConfig struct {
	// Mode: "off", "advisory" (только лог) или "mandatory" (блокирует сделку)
	Mode           string  `yaml:"mode"`
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	MinConfidence  float64 `yaml:"min_confidence"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int `yaml:"refresh_rate_ms"`
	MaxLogLines int `yaml:"max_log_lines"`
}

// Load загружает конфигурацию из файла и заполняет значения по умолчанию
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults заполняет неуказанные параметры значениями по умолчанию
func (c *Config) applyDefaults() {
	if len(c.Trading.Symbols) == 0 {
		c.Trading.Symbols = []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD"}
	}
	if c.Trading.Interval == "" {
		c.Trading.Interval = "5m"
	}
	if c.Trading.CandlesCount == 0 {
		c.Trading.CandlesCount = 250
	}
	if c.Trading.IntervalSeconds == 0 {
		c.Trading.IntervalSeconds = 60
	}

	if c.Strategy.SMAFast == 0 {
		c.Strategy.SMAFast = 21
	}
	if c.Strategy.SMAMedium == 0 {
		c.Strategy.SMAMedium = 50
	}
	if c.Strategy.SMATrend == 0 {
		c.Strategy.SMATrend = 200
	}
	if c.Strategy.RSIPeriod == 0 {
		c.Strategy.RSIPeriod = 14
	}
	if c.Strategy.SeparationThreshold == 0 {
		c.Strategy.SeparationThreshold = 0.0001
	}
	if c.Strategy.ReversalRun == 0 {
		c.Strategy.ReversalRun = 3
	}
	if c.Strategy.CrossoverLookback == 0 {
		c.Strategy.CrossoverLookback = 10
	}

	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = 0.02
	}
	if c.Risk.PipValuePerLot == 0 {
		c.Risk.PipValuePerLot = 10
	}
	if c.Risk.DefaultPipSize == 0 {
		c.Risk.DefaultPipSize = 0.0001
	}
	if c.Risk.YenPipSize == 0 {
		c.Risk.YenPipSize = 0.01
	}
	if len(c.Risk.YenQuoted) == 0 {
		c.Risk.YenQuoted = []string{"JPY"}
	}

	if c.Levels.Window == 0 {
		c.Levels.Window = 20
	}
	if c.Levels.Tolerance == 0 {
		c.Levels.Tolerance = 0.0002
	}

	if c.Exit.DivergenceWindow == 0 {
		c.Exit.DivergenceWindow = 5
	}
	if c.Exit.LevelTolerance == 0 {
		c.Exit.LevelTolerance = 0.0002
	}
	if c.Exit.ProfitTarget.Multiple == 0 {
		c.Exit.ProfitTarget.Multiple = 2
	}
	if c.Exit.Precedence == "" {
		c.Exit.Precedence = "levels_first"
	}

	if c.Contingency.MaxTrades == 0 {
		c.Contingency.MaxTrades = 13
	}

	if c.Advisory.Mode == "" {
		c.Advisory.Mode = "off"
	}
	if c.Advisory.MinConfidence == 0 {
		c.Advisory.MinConfidence = 0.7
	}
	if c.Advisory.TimeoutSeconds == 0 {
		c.Advisory.TimeoutSeconds = 10
	}

	if c.UI.RefreshRate == 0 {
		c.UI.RefreshRate = 500
	}
	if c.UI.MaxLogLines == 0 {
		c.UI.MaxLogLines = 12
	}
}
