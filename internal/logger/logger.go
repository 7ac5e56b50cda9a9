package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logDir      = "log"
	logFilename = "lsp.log"
)

var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var logFilePath string

// Init configures the global Logger. Levels are accepted either as names
// ("debug", "info", ...) or logrus-style numbers (0 panic ... 6 trace).
func Init(level string, json bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	Logger = zerolog.New(consoleOrJSON(os.Stdout, json)).
		With().
		Timestamp().
		Logger()

	zLevel := ParseLevel(level)
	zerolog.SetGlobalLevel(zLevel)
	Logger = Logger.Level(zLevel)

	if zLevel <= zerolog.DebugLevel {
		Logger = Logger.With().Caller().Logger()
	}
}

// AddFileLogger tees log output into a rotated file below workdir.
func AddFileLogger(workdir string, json bool) error {
	dir := filepath.Join(workdir, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	logFilePath = filepath.Join(dir, logFilename)
	fileLogger := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    50,
		MaxAge:     3,
		MaxBackups: 3,
	}

	multi := zerolog.MultiLevelWriter(consoleOrJSON(os.Stdout, json), fileLogger)
	Logger = zerolog.New(multi).
		With().
		Timestamp().
		Logger().
		Level(zerolog.GlobalLevel())
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		Logger = Logger.With().Caller().Logger()
	}
	return nil
}

func GetLogFilePath() string {
	return logFilePath
}

func ParseLevel(level string) zerolog.Level {
	if n, err := strconv.Atoi(level); err == nil {
		// logrus numbering: Panic=0 ... Trace=6
		switch n {
		case 6:
			return zerolog.TraceLevel
		case 5:
			return zerolog.DebugLevel
		case 4:
			return zerolog.InfoLevel
		case 3:
			return zerolog.WarnLevel
		case 2:
			return zerolog.ErrorLevel
		case 1:
			return zerolog.FatalLevel
		case 0:
			return zerolog.PanicLevel
		default:
			return zerolog.InfoLevel
		}
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

func consoleOrJSON(out io.Writer, json bool) io.Writer {
	if json {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.DateTime,
	}
}
