package config

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/kirsrus/telerelay/model"

	"github.com/jinzhu/configor"
	"github.com/juju/errors"
)

var (
	config Config
	once   sync.Once
)

const (
	FileName  = "config.yaml"
	EnvPrefix = "RELAY"
)

// GetWithPath единожды читает и возвращает конфигурацию. Отсутствие файла по умолчанию
// не является ошибкой: используются значения по умолчанию и переменные окружения
func GetWithPath(filepath string) *Config {
	once.Do(func() {
		cfg, err := Load(filepath)
		if err != nil {
			if filepath != FileName || !os.IsNotExist(errors.Cause(err)) {
				log.Fatalf("ошибка чтения файла конфигурации %s: %s", filepath, err)
			}
			if cfg, err = Load(""); err != nil {
				log.Fatalf("ошибка чтения конфигурации по умолчанию: %s", err)
			}
		}
		config = *cfg
	})
	return &config
}

// Load читает конфигурацию из файла filepath (если указан) без кэширования.
// Переменные окружения с префиксом EnvPrefix перекрывают значения из файла
func Load(filepath string) (*Config, error) {
	files := make([]string, 0, 1)
	if filepath != "" {
		if _, err := os.Stat(filepath); err != nil {
			return nil, errors.Annotate(err, "файл конфигурации недоступен")
		}
		files = append(files, filepath)
	}

	var cfg Config
	err := configor.New(&configor.Config{ENVPrefix: EnvPrefix}).Load(&cfg, files...)
	if err != nil {
		return nil, errors.Annotatef(err, "ошибка чтения конфигурации %s", filepath)
	}
	if cfg.Store.Capacity < 0 {
		return nil, errors.Errorf("некорректная ёмкость хранилища: %d", cfg.Store.Capacity)
	}
	if cfg.Store.DashboardHistory < 0 {
		return nil, errors.Errorf("некорректная глубина истории панели: %d", cfg.Store.DashboardHistory)
	}
	return &cfg, nil
}

// LogFile полный путь к файлу лога
func (m Config) LogFile() string {
	if m.Log.Filename == "" {
		return ""
	}
	return filepath.Join(m.Log.Path, m.Log.Filename)
}

// DbFile полный путь к файлу базы данных sqlite
func (m Config) DbFile() string {
	return filepath.Join(m.Db.Path, m.Db.Filename)
}

// InitialThresholds пороги, с которыми стартует сервис
func (m Config) InitialThresholds() model.ThresholdSet {
	return model.ThresholdSet{
		TemperatureMax: m.Thresholds.TemperatureMax,
		HumidityMin:    m.Thresholds.HumidityMin,
		LuminosityMin:  m.Thresholds.LuminosityMin,
		DistanceMin:    m.Thresholds.DistanceMin,
		DistanceMax:    m.Thresholds.DistanceMax,
	}
}
