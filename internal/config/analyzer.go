package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AnalyzerConfig holds the expiration analysis policy. It is kept in a
// separate, hot-reloadable file so operators can widen or narrow the
// reporting window without restarting the worker.
type AnalyzerConfig struct {
	// WindowDays bounds how far ahead an endDate may fall and still be
	// considered an upcoming expiration.
	WindowDays int `mapstructure:"windowDays"`
	// LookbackYears bounds how old a record may be and still be the
	// subject of a finding. Older records remain usable as later-record
	// evidence for records inside the window.
	LookbackYears int `mapstructure:"lookbackYears"`
}

func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		WindowDays:    90,
		LookbackYears: 3,
	}
}

// AnalyzerConfigHolder exposes the current analyzer policy, refreshed on
// config-file change.
type AnalyzerConfigHolder struct {
	current atomic.Value // holds AnalyzerConfig
}

func NewAnalyzerConfigHolder() (*AnalyzerConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("provwatch")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/provwatch/config")
	v.AddConfigPath("/etc/provwatch")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROVWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultAnalyzerConfig()
		v.SetDefault("analyzer.windowDays", defaults.WindowDays)
		v.SetDefault("analyzer.lookbackYears", defaults.LookbackYears)
	}

	var cfg AnalyzerConfig
	if err := v.UnmarshalKey("analyzer", &cfg); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := validateAnalyzerConfig(cfg); err != nil {
		return nil, err
	}

	holder := &AnalyzerConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		var next AnalyzerConfig
		if err := v.UnmarshalKey("analyzer", &next); err != nil {
			log.Printf("analyzer config reload failed: %v", err)
			return
		}
		next = next.withDefaults()
		if err := validateAnalyzerConfig(next); err != nil {
			log.Printf("analyzer config reload rejected: %v", err)
			return
		}
		holder.current.Store(next)
	})

	return holder, nil
}

// Current returns the active analyzer policy.
func (h *AnalyzerConfigHolder) Current() AnalyzerConfig {
	if h == nil {
		return DefaultAnalyzerConfig()
	}
	if cfg, ok := h.current.Load().(AnalyzerConfig); ok {
		return cfg
	}
	return DefaultAnalyzerConfig()
}

func (c AnalyzerConfig) withDefaults() AnalyzerConfig {
	defaults := DefaultAnalyzerConfig()
	if c.WindowDays <= 0 {
		c.WindowDays = defaults.WindowDays
	}
	if c.LookbackYears <= 0 {
		c.LookbackYears = defaults.LookbackYears
	}
	return c
}

func validateAnalyzerConfig(cfg AnalyzerConfig) error {
	if cfg.WindowDays <= 0 {
		return errors.New("analyzer.windowDays must be positive")
	}
	if cfg.LookbackYears <= 0 {
		return errors.New("analyzer.lookbackYears must be positive")
	}
	return nil
}
