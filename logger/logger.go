package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// ANSI color codes
const (
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorReset  = "\033[0m"
)

type Logger struct {
	*log.Logger
	mu    sync.Mutex
	debug bool
}

var (
	instance *Logger
	once     sync.Once
)

// GetLogger returns a singleton logger instance
func GetLogger() *Logger {
	once.Do(func() {
		instance = setupLogger()
	})
	return instance
}

// L is shorthand for GetLogger
func L() *Logger {
	return GetLogger()
}

func setupLogger() *Logger {
	dir, _ := os.Getwd()
	logDir := filepath.Join(dir, "logs")
	os.MkdirAll(logDir, 0755)

	logFile := filepath.Join(logDir, "application.log")
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)

	var out io.Writer = os.Stdout
	if err == nil {
		out = io.MultiWriter(os.Stdout, file)
	}

	return &Logger{
		Logger: log.New(out, "", 0),
		debug:  false,
	}
}

func (l *Logger) formatMessage(level, msg string, props map[string]interface{}) string {
	_, file, line, _ := runtime.Caller(3)

	ist := time.FixedZone("IST", 5*60*60+30*60)

	levelStr := level
	switch level {
	case "ERROR":
		levelStr = colorRed + level + colorReset
	case "WARN":
		levelStr = colorYellow + level + colorReset
	}

	logMsg := fmt.Sprintf("%s | %s | %s:%d | %s",
		time.Now().In(ist).Format("02-01-06:15:04:05"),
		levelStr,
		filepath.Base(file),
		line,
		msg,
	)

	if len(props) > 0 {
		propStr := ""
		for k, v := range props {
			propStr += fmt.Sprintf(" %s=%v", k, v)
		}
		logMsg += " |" + propStr
	}

	return logMsg
}

func (l *Logger) write(level, msg string, props ...map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var properties map[string]interface{}
	if len(props) > 0 {
		properties = props[0]
	}

	l.Println(l.formatMessage(level, msg, properties))
}

func (l *Logger) Info(msg string, props ...map[string]interface{}) {
	l.write("INFO", msg, props...)
}

func (l *Logger) Warn(msg string, props ...map[string]interface{}) {
	l.write("WARN", msg, props...)
}

func (l *Logger) Error(msg string, props ...map[string]interface{}) {
	l.write("ERROR", msg, props...)
}

func (l *Logger) Debug(msg string, props ...map[string]interface{}) {
	if !l.debug {
		return
	}
	l.write("DEBUG", msg, props...)
}

func (l *Logger) Fatal(msg string, props ...map[string]interface{}) {
	l.write("ERROR", msg, props...)
	os.Exit(1)
}

// EnableDebug enables debug logging
func (l *Logger) EnableDebug() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = true
}
