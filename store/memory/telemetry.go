package memory

import (
	"time"

	"github.com/kirsrus/telerelay/model"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Telemetry хранилище замеров и порогов в памяти процесса. Имплементирует store.TelemetryStore.
// Инициализируется через NewTelemetry
type Telemetry struct {
	*Thresholds
	*Readings
}

// ConfigTelemetry конфигурация Telemetry
type ConfigTelemetry struct {
	Log        *logrus.Logger
	Capacity   int
	Thresholds *model.ThresholdSet
	Now        func() time.Time
}

// NewTelemetry конструктор Telemetry
func NewTelemetry(config *ConfigTelemetry) (*Telemetry, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}

	thresholds, err := NewThresholds(&ConfigThresholds{
		Log:     config.Log,
		Initial: config.Thresholds,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	readings, err := NewReadings(&ConfigReadings{
		Log:      config.Log,
		Capacity: config.Capacity,
		Now:      config.Now,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &Telemetry{
		Thresholds: thresholds,
		Readings:   readings,
	}, nil
}

// Snapshot последние n замеров, пороги и размер журнала, прочитанные при одновременно
// удерживаемых блокировках журнала и реестра. Порядок захвата: журнал, затем реестр
func (m *Telemetry) Snapshot(n int) model.Snapshot {
	m.Readings.mu.RLock()
	defer m.Readings.mu.RUnlock()
	m.Thresholds.mu.RLock()
	defer m.Thresholds.mu.RUnlock()

	return model.Snapshot{
		Recent:     m.Readings.tail(n),
		Thresholds: m.Thresholds.current,
		Total:      m.Readings.size,
		Capacity:   m.Readings.capacity,
	}
}
