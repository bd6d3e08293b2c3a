package providers

import (
	"fmt"
	"os"
	"path/filepath"
	"vfd/internal/structures"

	"github.com/rs/zerolog"
)

type TypeEnum uint8

const (
	TypeApp TypeEnum = iota
	TypeGet
	TypePost
	TypeCompute
	TypeEvent
)

type Logger interface {
	Errorf(t TypeEnum, format string, args ...interface{})
	Warnf(t TypeEnum, format string, args ...interface{})
	Infof(t TypeEnum, format string, args ...interface{})
	Debugf(t TypeEnum, format string, args ...interface{})
	Fatalf(t TypeEnum, format string, args ...interface{})
	Close()
}

func GetLogTypeByRequestType(method string) TypeEnum {
	if method == "POST" {
		return TypePost
	}
	return TypeGet
}

// logFileNames maps a log type to its file inside the configured log dir.
// GET and POST traffic share the access log.
var logFileNames = map[TypeEnum]string{
	TypeApp:     "app.log",
	TypeGet:     "access.log",
	TypePost:    "access.log",
	TypeCompute: "compute.log",
	TypeEvent:   "events.log",
}

type LogProvider struct {
	loggers map[TypeEnum]zerolog.Logger
	files   []*os.File
	debug   bool
}

func NewLogProvider(conf *structures.Config) (Logger, error) {
	level, err := zerolog.ParseLevel(conf.Logger.Level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q: %w", conf.Logger.Level, err)
	}

	if err = os.MkdirAll(conf.Logger.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}

	lp := &LogProvider{
		loggers: make(map[TypeEnum]zerolog.Logger),
		debug:   conf.Debug,
	}

	opened := make(map[string]*os.File)
	for t, name := range logFileNames {
		path := filepath.Join(conf.Logger.Dir, name)
		file, ok := opened[path]
		if !ok {
			file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, os.FileMode(conf.Logger.Mode))
			if err != nil {
				lp.Close()
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			opened[path] = file
			lp.files = append(lp.files, file)
		}
		logger := zerolog.New(file).Level(level).With().Timestamp().Logger()
		if conf.Debug {
			logger = zerolog.New(zerolog.MultiLevelWriter(file, zerolog.ConsoleWriter{Out: os.Stderr})).
				Level(level).With().Timestamp().Logger()
		}
		lp.loggers[t] = logger
	}

	return lp, nil
}

func (lp *LogProvider) log(t TypeEnum) zerolog.Logger {
	if l, ok := lp.loggers[t]; ok {
		return l
	}
	return lp.loggers[TypeApp]
}

func (lp *LogProvider) Errorf(t TypeEnum, format string, args ...interface{}) {
	l := lp.log(t)
	l.Error().Msgf(format, args...)
}

func (lp *LogProvider) Warnf(t TypeEnum, format string, args ...interface{}) {
	l := lp.log(t)
	l.Warn().Msgf(format, args...)
}

func (lp *LogProvider) Infof(t TypeEnum, format string, args ...interface{}) {
	l := lp.log(t)
	l.Info().Msgf(format, args...)
}

func (lp *LogProvider) Debugf(t TypeEnum, format string, args ...interface{}) {
	l := lp.log(t)
	l.Debug().Msgf(format, args...)
}

func (lp *LogProvider) Fatalf(t TypeEnum, format string, args ...interface{}) {
	l := lp.log(t)
	l.Fatal().Msgf(format, args...)
}

func (lp *LogProvider) Close() {
	for _, f := range lp.files {
		_ = f.Close()
	}
	lp.files = nil
}
