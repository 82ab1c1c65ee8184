package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации ("debug", "info", ...).
// Неизвестные значения дают INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case TRACE:
		return zerolog.TraceLevel
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Options задаёт вывод логгеров.
type Options struct {
	Level   LogLevel
	Dir     string    // каталог для файловых логов; пусто - только консоль
	Console io.Writer // nil - os.Stdout
}

// Logger представляет логгер одного компонента
type Logger struct {
	component string
	zl        zerolog.Logger
	file      *os.File
	level     LogLevel
}

var (
	optsMu        sync.RWMutex
	currentOpts   = Options{Level: INFO}
	defaultLogger = newConsoleLogger("replay", currentOpts)
)

// InitLogger инициализирует систему логирования и логгер по умолчанию
func InitLogger(opts Options) error {
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("ошибка создания директории логов: %w", err)
		}
	}

	optsMu.Lock()
	currentOpts = opts
	optsMu.Unlock()

	logger, err := NewLogger("replay")
	if err != nil {
		return err
	}

	optsMu.Lock()
	old := defaultLogger
	defaultLogger = logger
	optsMu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// CloseLogger закрывает логгер по умолчанию
func CloseLogger() {
	optsMu.RLock()
	l := defaultLogger
	optsMu.RUnlock()
	if l != nil {
		_ = l.Close()
	}
}

// NewLogger создаёт логгер компонента с текущими настройками
func NewLogger(component string) (*Logger, error) {
	optsMu.RLock()
	opts := currentOpts
	optsMu.RUnlock()

	if opts.Dir == "" {
		return newConsoleLogger(component, opts), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(opts.Dir, fmt.Sprintf("%s_%s.log", component, timestamp))
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	w := zerolog.MultiLevelWriter(consoleWriter(opts), file)
	return &Logger{
		component: component,
		zl:        build(w, component, opts.Level),
		file:      file,
		level:     opts.Level,
	}, nil
}

func newConsoleLogger(component string, opts Options) *Logger {
	return &Logger{
		component: component,
		zl:        build(consoleWriter(opts), component, opts.Level),
		level:     opts.Level,
	}
}

func consoleWriter(opts Options) io.Writer {
	out := opts.Console
	if out == nil {
		out = os.Stdout
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
}

func build(w io.Writer, component string, level LogLevel) zerolog.Logger {
	return zerolog.New(w).Level(level.zerolog()).With().Timestamp().Str("component", component).Logger()
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

// SetLevel меняет минимальный уровень логгера
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// Close закрывает файловый вывод, если он есть
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) Trace(format string, args ...interface{}) { l.zl.Trace().Msgf(format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

func current() *Logger {
	optsMu.RLock()
	defer optsMu.RUnlock()
	return defaultLogger
}

// Trace логирует сообщение уровня TRACE логгером по умолчанию
func Trace(format string, args ...interface{}) { current().Trace(format, args...) }

// Debug логирует сообщение уровня DEBUG логгером по умолчанию
func Debug(format string, args ...interface{}) { current().Debug(format, args...) }

// Info логирует сообщение уровня INFO логгером по умолчанию
func Info(format string, args ...interface{}) { current().Info(format, args...) }

// Warn логирует сообщение уровня WARN логгером по умолчанию
func Warn(format string, args ...interface{}) { current().Warn(format, args...) }

// Error логирует сообщение уровня ERROR логгером по умолчанию
func Error(format string, args ...interface{}) { current().Error(format, args...) }

// HexDump создает hex дамп данных
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}

	// Ограничиваем размер дампа до 256 байт
	size := len(data)
	if size > 256 {
		size = 256
	}

	return hex.Dump(data[:size])
}
