package providers

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"vfd/internal/structures"

	"github.com/spf13/viper"
)

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	filename := filepath.Base(flags.ConfigPath)
	viper.AddConfigPath(filepath.Dir(flags.ConfigPath))
	viper.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	viper.SetConfigType("yaml")

	viper.SetDefault("semantic.maxRetries", 2)

	viper.BindEnv("logger.level", "VFD_LOG_LEVEL")
	viper.BindEnv("storage.path", "VFD_STORAGE_PATH")
	viper.BindEnv("semantic.enabled", "VFD_SEMANTIC_ENABLED")
	viper.BindEnv("semantic.baseUrl", "VFD_SEMANTIC_BASE_URL")
	viper.BindEnv("semantic.model", "VFD_SEMANTIC_MODEL")
	viper.BindEnv("events.debounceWindow", "VFD_DEBOUNCE_WINDOW")
	viper.BindEnv("scheduler.recomputeInterval", "VFD_RECOMPUTE_INTERVAL")
	viper.BindEnv("cache.enabled", "VFD_CACHE_ENABLED")
	viper.BindEnv("cache.size", "VFD_CACHE_SIZE")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = viper.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	applyDefaults(&conf)

	conf.AppName = "VoiceFingerprintDaemon"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}

// applyDefaults fills analysis and pipeline knobs that are optional in the
// config file. The minimum-evidence gate and the debounce window have fixed
// documented defaults; the tolerance factor is the threshold-band policy knob.
func applyDefaults(conf *structures.Config) {
	if conf.Analysis.MinSamples <= 0 {
		conf.Analysis.MinSamples = 3
	}
	if conf.Analysis.MinCorpusTokens <= 0 {
		conf.Analysis.MinCorpusTokens = 20
	}
	if conf.Analysis.ToleranceFactor <= 0 {
		conf.Analysis.ToleranceFactor = 1.5
	}
	if conf.Semantic.CallTimeout <= 0 {
		conf.Semantic.CallTimeout = 10 * time.Second
	}
	// The retry default lives in viper (SetDefault) so an explicit 0 in the
	// config file stays 0; negatives normalize to no retries.
	if conf.Semantic.MaxRetries < 0 {
		conf.Semantic.MaxRetries = 0
	}
	if conf.Semantic.Model == "" {
		conf.Semantic.Model = "text-embedding-3-small"
	}
	if conf.Events.DebounceWindow <= 0 {
		conf.Events.DebounceWindow = 300 * time.Millisecond
	}
	if conf.Events.QueueSize <= 0 {
		conf.Events.QueueSize = 1024
	}
	if conf.Scheduler.RecomputeInterval <= 0 {
		conf.Scheduler.RecomputeInterval = 15 * time.Minute
	}
	if conf.Storage.CompressMin <= 0 {
		conf.Storage.CompressMin = 256
	}
}
