// Package logger provides the process-wide leveled logger.
//
// The intake service reports connection lifecycle events, completed writes
// and per-connection failures as human-readable status lines. The format is
// not a compatibility contract; operators may switch to JSON lines for log
// shippers via SetFormat.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	mu            sync.Mutex
	currentLevel  = LevelInfo
	currentFormat = FormatText
	logger        = stdlog.New(os.Stderr, "", 0)
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the minimum level that will be emitted. Unknown values are
// ignored and the current level is kept.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat selects between human-readable text lines and JSON lines.
func SetFormat(format string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(format) {
	case "json":
		currentFormat = FormatJSON
	case "text":
		currentFormat = FormatText
	}
}

// SetOutput redirects log output. The default is standard error.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = stdlog.New(w, "", 0)
}

func log(level Level, format string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, v...)

	if currentFormat == FormatJSON {
		line, err := json.Marshal(map[string]string{
			"time":    timestamp,
			"level":   level.String(),
			"message": message,
		})
		if err == nil {
			logger.Println(string(line))
		}
		return
	}

	logger.Println(fmt.Sprintf("[%s] [%s] ", timestamp, level.String()) + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
