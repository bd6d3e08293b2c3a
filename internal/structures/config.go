package structures

import "time"

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type StorageConfig struct {
	Path        string `yaml:"path" validate:"required|unixPath"`
	CompressMin int    `yaml:"compressMin"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

type AnalysisConfig struct {
	MinSamples      int     `yaml:"minSamples"`
	MinCorpusTokens int     `yaml:"minCorpusTokens"`
	ToleranceFactor float64 `yaml:"toleranceFactor"`
}

type SemanticConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"baseUrl"`
	Model       string        `yaml:"model"`
	CallTimeout time.Duration `yaml:"callTimeout"`
	MaxRetries  int           `yaml:"maxRetries"`
}

type EventsConfig struct {
	DebounceWindow time.Duration `yaml:"debounceWindow"`
	QueueSize      int           `yaml:"queueSize"`
}

type SchedulerConfig struct {
	RecomputeInterval time.Duration `yaml:"recomputeInterval"`
}

type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName   string
	Debug     bool
	Path      string
	WebServer Server          `yaml:"webServer"`
	Storage   StorageConfig   `yaml:"storage"`
	Logger    LoggerConfig    `yaml:"logger"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Events    EventsConfig    `yaml:"events"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}
