package loggerfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var globalLogDir = "logs"

// SetGlobalLogDir sets the directory under which all trace files are created.
func SetGlobalLogDir(logDir string) {
	globalLogDir = logDir
}

func GetGlobalLogDir() string {
	return globalLogDir
}

// FileLogger appends timestamped lines to a single trace file. Agents open
// one per run to keep a round-by-round record separate from console output.
type FileLogger struct {
	file  *os.File
	mutex sync.Mutex
}

// NewFileLogger opens (creating directories as needed) a trace file relative
// to the global log directory.
func NewFileLogger(filePath string) (*FileLogger, error) {
	full := filepath.Join(globalLogDir, filePath)
	if err := os.MkdirAll(filepath.Dir(full), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &FileLogger{file: file}, nil
}

// Info formats and appends one line. A nil receiver is a no-op so callers
// can hold an optional tracer without guarding every call.
func (fl *FileLogger) Info(format string, a ...interface{}) {
	if fl == nil {
		return
	}
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, a...))
	fl.file.WriteString(line)
}

// Close flushes and closes the underlying file.
func (fl *FileLogger) Close() error {
	if fl == nil {
		return nil
	}
	fl.mutex.Lock()
	defer fl.mutex.Unlock()
	return fl.file.Close()
}
