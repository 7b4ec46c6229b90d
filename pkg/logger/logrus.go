package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	RotateMaxSize    = 30 // MB
	RotateLocalTime  = true
	RotateMaxAge     = 365 // Дней
	RotateMaxBackups = 10  // Колличество файлов
	RotateCompress   = true
	TimestampFormat  = "2006.01.02 15:04:05"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

// Config конфигурация лога
type Config struct {
	File    string
	Level   logrus.Level
	Console bool
}

// GetWithConfig единожды создаёт и возвращает лог с конфигурацией config
func GetWithConfig(config Config) *logrus.Logger {
	once.Do(func() {
		logger = New(config)
		logger.Infof("----------===== начало записи в лог %s =====----------", time.Now().Format(TimestampFormat))
	})
	return logger
}

// New создаёт новый лог. При Console или пустом File лог пишется только на консоль,
// иначе дополнительно в ротируемый файл
func New(config Config) *logrus.Logger {
	log := logrus.New()
	log.Level = config.Level
	log.Formatter = &logrus.TextFormatter{
		DisableColors:    false,
		FullTimestamp:    true,
		TimestampFormat:  TimestampFormat,
		CallerPrettyfier: callerPrettyfier,
	}
	log.ReportCaller = true
	log.Out = Writer(config)
	return log
}

// Writer куда писать лог с конфигурацией config
func Writer(config Config) io.Writer {
	if config.Console || config.File == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    RotateMaxSize, // MB
		MaxAge:     RotateMaxAge,  // Day
		MaxBackups: RotateMaxBackups,
		LocalTime:  RotateLocalTime,
		Compress:   RotateCompress,
	})
}

// Вместо полного пути функции и файла выводим только файл и строку
func callerPrettyfier(frame *runtime.Frame) (function string, file string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}
