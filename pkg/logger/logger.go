package logger

import (
	"bytes"
	"fmt"
	"os"
	"time"
)

// Log level flags. A message is emitted when the configured flag is at
// least as high as the message level.
const (
	FLAG_TRACE = 5
	FLAG_DEBUG = 4
	FLAG_INFO  = 3
	FLAG_WARN  = 2
	FLAG_ERROR = 1
)

// ANSI color codes.
const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Cyan   = "\033[36m"
)

type LoggerConfig struct {
	Flag       int
	Identifier string
	Outputs    []*os.File
}

type Logger struct {
	Config *LoggerConfig
}

var config = &LoggerConfig{
	Flag:    FLAG_INFO,
	Outputs: []*os.File{os.Stdout},
}

var logger = &Logger{Config: config}

func SetConfig(newConfig *LoggerConfig) { *config = *newConfig; logger.Config = config }
func SetOutputs(outputs []*os.File)     { config.Outputs = outputs }
func SetFlag(flag int)                  { config.Flag = flag }
func SetIdentifier(identifier string)   { config.Identifier = identifier }

func Trace(msg string, a ...interface{}) { log(FLAG_TRACE, Blue, "TRACE", msg, a...) }
func Debug(msg string, a ...interface{}) { log(FLAG_DEBUG, Cyan, "DEBUG", msg, a...) }
func Info(msg string, a ...interface{})  { log(FLAG_INFO, Green, "INFO", msg, a...) }
func Warn(msg string, a ...interface{})  { log(FLAG_WARN, Yellow, "WARN", msg, a...) }

func Error(msg string, a ...interface{}) {
	if config.Flag < FLAG_ERROR {
		return
	}
	os.Stderr.Write(format(Red, "ERROR", msg, a...))
}

func log(level int, color, prefix string, msg string, a ...interface{}) {
	if config.Flag < level {
		return
	}
	logger.writeToOutputs(format(color, prefix, msg, a...))
}

func (l *Logger) writeToOutputs(buffer []byte) {
	for _, out := range l.Config.Outputs {
		if out != nil {
			out.Write(buffer)
		}
	}
}

func format(color, prefix string, msg string, a ...interface{}) []byte {
	var buffer bytes.Buffer
	buffer.WriteString(color)
	fmt.Fprintf(&buffer, "[%s] %s ", prefix, time.Now().Format("15:04:05.000"))
	if config.Identifier != "" {
		fmt.Fprintf(&buffer, "[%s] ", config.Identifier)
	}
	if len(a) > 0 {
		fmt.Fprintf(&buffer, msg, a...)
	} else {
		buffer.WriteString(msg)
	}
	buffer.WriteString(Reset + "\n")
	return buffer.Bytes()
}
