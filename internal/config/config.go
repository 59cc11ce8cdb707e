// Package config provides configuration management for the backtester.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"backtester/internal/errors"
	"backtester/internal/risk"
)

// DateLayout is the wire format for dates in configuration files.
const DateLayout = "2006-01-02"

// Config holds all application configuration.
type Config struct {
	Run          RunConfig           `mapstructure:"run"`
	Risk         RiskSettings        `mapstructure:"risk"`
	Optimization OptimizationConfig  `mapstructure:"optimization"`
	WalkForward  WalkForwardSettings `mapstructure:"walkforward"`
	Log          LogSettings         `mapstructure:"log"`
}

// RunConfig holds the parameters of a single backtest run. Immutable for
// a run.
type RunConfig struct {
	Symbol          string  `mapstructure:"symbol"`
	StockName       string  `mapstructure:"stock_name"`
	StartDate       string  `mapstructure:"start_date"`
	EndDate         string  `mapstructure:"end_date"`
	InitialCapital  float64 `mapstructure:"initial_capital"`
	CommissionRate  float64 `mapstructure:"commission_rate"`
	MinCommission   float64 `mapstructure:"min_commission"`
	SlippageBps     float64 `mapstructure:"slippage_bps"`
	TransferTaxRate float64 `mapstructure:"transfer_tax_rate"`
	LotSize         int     `mapstructure:"lot_size"`
	RiskFreeRate    float64 `mapstructure:"risk_free_rate"`
	Strategy        string  `mapstructure:"strategy"`
	Benchmark       string  `mapstructure:"benchmark"`
	CloseOnFinish   bool    `mapstructure:"close_on_finish"`
}

// RiskSettings mirrors risk.Config in TOML form. A zero threshold means
// the rule is disabled.
type RiskSettings struct {
	MaxPositionPct   float64 `mapstructure:"max_position_pct"`
	MaxTotalExposure float64 `mapstructure:"max_total_exposure"`
	StopLossPct      float64 `mapstructure:"stop_loss_pct"`
	StopProfitPct    float64 `mapstructure:"stop_profit_pct"`
	MaxDrawdownPct   float64 `mapstructure:"max_drawdown_pct"`
	TrailingStop     bool    `mapstructure:"trailing_stop"`
}

// ToRiskConfig converts the TOML settings to the risk package's optional
// threshold form.
func (r RiskSettings) ToRiskConfig() risk.Config {
	cfg := risk.DefaultConfig()
	if r.MaxPositionPct > 0 {
		cfg.MaxPositionPct = r.MaxPositionPct
	}
	if r.MaxTotalExposure > 0 {
		cfg.MaxTotalExposure = r.MaxTotalExposure
	}
	if r.StopLossPct > 0 {
		v := r.StopLossPct
		cfg.StopLossPct = &v
	}
	if r.StopProfitPct > 0 {
		v := r.StopProfitPct
		cfg.StopProfitPct = &v
	}
	if r.MaxDrawdownPct > 0 {
		v := r.MaxDrawdownPct
		cfg.MaxDrawdownPct = &v
	}
	cfg.TrailingStop = r.TrailingStop
	return cfg
}

// ParamValues is one named axis of the optimization grid. Axis order in
// the config file fixes the enumeration order.
type ParamValues struct {
	Name   string    `mapstructure:"name"`
	Values []float64 `mapstructure:"values"`
}

// ConstraintSetting bounds a metric during optimization. Unset bounds
// stay nil and are not applied.
type ConstraintSetting struct {
	Metric string   `mapstructure:"metric"`
	Min    *float64 `mapstructure:"min"`
	Max    *float64 `mapstructure:"max"`
}

// OptimizationConfig holds grid-search parameters.
type OptimizationConfig struct {
	Objective   string              `mapstructure:"objective"`
	Workers     int                 `mapstructure:"workers"`
	Params      []ParamValues       `mapstructure:"params"`
	Constraints []ConstraintSetting `mapstructure:"constraints"`
}

// WalkForwardSettings holds the rolling-validation window geometry.
type WalkForwardSettings struct {
	TrainBars            int     `mapstructure:"train_bars"`
	TestBars             int     `mapstructure:"test_bars"`
	StepBars             int     `mapstructure:"step_bars"`
	OptimizeInTrain      bool    `mapstructure:"optimize_in_train"`
	DegradationThreshold float64 `mapstructure:"degradation_threshold"`
}

// LogSettings holds logging configuration.
type LogSettings struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
	File    bool   `mapstructure:"file"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/backtester"
	}
	return filepath.Join(home, ".config", "backtester")
}

// Load loads configuration from the specified directory. If configDir is
// empty, uses the default config directory. A missing config file is
// created from the template.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("BACKTESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createTemplateConfig(configDir); err != nil {
				return nil, errors.Wrap(err, "creating config template")
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrap(err, "reading config.toml")
			}
		} else {
			return nil, errors.Wrap(err, "reading config.toml")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config.toml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.initial_capital", 100000.0)
	v.SetDefault("run.commission_rate", 0.0003)
	v.SetDefault("run.min_commission", 5.0)
	v.SetDefault("run.slippage_bps", 5.0)
	v.SetDefault("run.transfer_tax_rate", 0.001)
	v.SetDefault("run.lot_size", 100)
	v.SetDefault("run.risk_free_rate", 0.03)
	v.SetDefault("run.strategy", "ma_cross")
	v.SetDefault("risk.max_position_pct", 1.0)
	v.SetDefault("risk.max_total_exposure", 1.0)
	v.SetDefault("optimization.objective", "sharpe_ratio")
	v.SetDefault("optimization.workers", 1)
	v.SetDefault("walkforward.train_bars", 252)
	v.SetDefault("walkforward.test_bars", 63)
	v.SetDefault("walkforward.step_bars", 63)
	v.SetDefault("walkforward.optimize_in_train", true)
	v.SetDefault("walkforward.degradation_threshold", 0.30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", true)
}

// Validate checks the configuration before any simulation starts.
func (c *Config) Validate() error {
	r := c.Run
	if r.InitialCapital <= 0 {
		return errors.NewConfigError("initial_capital", r.InitialCapital, "must be positive")
	}
	if r.CommissionRate < 0 || r.CommissionRate >= 1 {
		return errors.NewConfigError("commission_rate", r.CommissionRate, "must be in [0, 1)")
	}
	if r.MinCommission < 0 {
		return errors.NewConfigError("min_commission", r.MinCommission, "must be >= 0")
	}
	if r.SlippageBps < 0 {
		return errors.NewConfigError("slippage_bps", r.SlippageBps, "must be >= 0")
	}
	if r.TransferTaxRate < 0 || r.TransferTaxRate >= 1 {
		return errors.NewConfigError("transfer_tax_rate", r.TransferTaxRate, "must be in [0, 1)")
	}
	if r.LotSize <= 0 {
		return errors.NewConfigError("lot_size", r.LotSize, "must be positive")
	}

	if r.StartDate != "" && r.EndDate != "" {
		start, err := time.Parse(DateLayout, r.StartDate)
		if err != nil {
			return errors.NewConfigError("start_date", r.StartDate, "invalid date")
		}
		end, err := time.Parse(DateLayout, r.EndDate)
		if err != nil {
			return errors.NewConfigError("end_date", r.EndDate, "invalid date")
		}
		if !end.After(start) {
			return errors.NewConfigError("end_date", r.EndDate, "must be after start_date")
		}
	}

	riskCfg := c.Risk.ToRiskConfig()
	if err := riskCfg.Validate(); err != nil {
		return err
	}

	for _, p := range c.Optimization.Params {
		if p.Name == "" || len(p.Values) == 0 {
			return errors.NewConfigError("optimization.params", p.Name, "axis needs a name and values")
		}
	}
	return nil
}

// DateRange parses the configured start and end dates. Zero times are
// returned for unset dates.
func (c *Config) DateRange() (start, end time.Time, err error) {
	if c.Run.StartDate != "" {
		start, err = time.Parse(DateLayout, c.Run.StartDate)
		if err != nil {
			return
		}
	}
	if c.Run.EndDate != "" {
		end, err = time.Parse(DateLayout, c.Run.EndDate)
	}
	return
}
