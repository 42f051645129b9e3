package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ScheduleConfig carries the fallback production scheduling knobs used when a
// collection does not define its own stage-duration table.
type ScheduleConfig struct {
	// DefaultOrderDays is the single-stage fallback duration for orders.
	DefaultOrderDays int `mapstructure:"defaultOrderDays"`
	// SampleStages is the built-in sample schedule (stage name -> days).
	SampleStages map[string]int `mapstructure:"sampleStages"`
}

func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		DefaultOrderDays: 25,
		SampleStages: map[string]int{
			"PLANNING": 2,
			"FABRIC":   2,
			"SEWING":   5,
			"QUALITY":  1,
			"SHIPPING": 1,
		},
	}
}

type ScheduleConfigHolder struct {
	current atomic.Value // holds ScheduleConfig
}

func NewScheduleConfigHolder() (*ScheduleConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("schedule")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/loomline/config")
	v.AddConfigPath("/etc/loomline")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LOOMLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultScheduleConfig()
	v.SetDefault("schedule.defaultOrderDays", defaults.DefaultOrderDays)
	v.SetDefault("schedule.sampleStages", defaults.SampleStages)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg ScheduleConfig
	if err := v.UnmarshalKey("schedule", &cfg); err != nil {
		return nil, err
	}
	if err := validateScheduleConfig(cfg); err != nil {
		return nil, err
	}

	holder := &ScheduleConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ScheduleConfig
		if err := v.UnmarshalKey("schedule", &updated); err != nil {
			log.Printf("[schedule-config] reload failed: %v", err)
			return
		}
		if err := validateScheduleConfig(updated); err != nil {
			log.Printf("[schedule-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[schedule-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticScheduleConfigHolder wraps a fixed config without file watching.
func NewStaticScheduleConfigHolder(cfg ScheduleConfig) *ScheduleConfigHolder {
	holder := &ScheduleConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *ScheduleConfigHolder) Get() ScheduleConfig {
	return h.current.Load().(ScheduleConfig)
}

func validateScheduleConfig(cfg ScheduleConfig) error {
	if cfg.DefaultOrderDays <= 0 {
		return errors.New("schedule.defaultOrderDays must be positive")
	}
	if len(cfg.SampleStages) == 0 {
		return errors.New("schedule.sampleStages cannot be empty")
	}
	for stage, days := range cfg.SampleStages {
		if days < 0 {
			return errors.New("schedule.sampleStages." + stage + " cannot be negative")
		}
	}
	return nil
}
