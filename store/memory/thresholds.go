package memory

import (
	"io/ioutil"
	"sync"

	"github.com/kirsrus/telerelay/model"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Thresholds реестр текущих порогов. Инициализируется через NewThresholds.
// Слияние выполняется целиком под блокировкой, поэтому читатель никогда не видит
// набор, собранный из полей разных обновлений
type Thresholds struct {
	log *logrus.Entry

	mu      sync.RWMutex
	current model.ThresholdSet
}

// ConfigThresholds конфигурация Thresholds
type ConfigThresholds struct {
	Log *logrus.Logger
	// Начальные пороги. Если не заданы, используются model.DefaultThresholds
	Initial *model.ThresholdSet
}

// NewThresholds конструктор Thresholds
func NewThresholds(config *ConfigThresholds) (*Thresholds, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	thresholds := Thresholds{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "thresholds",
			"scope":  "store",
		}),
		current: model.DefaultThresholds(),
	}
	if config.Initial != nil {
		thresholds.current = *config.Initial
	}

	return &thresholds, nil
}

// Get текущие пороги
func (m *Thresholds) Get() model.ThresholdSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Merge накладывает заданные в patch поля на текущие пороги и возвращает результат.
// Отсутствующие поля не меняются
func (m *Thresholds) Merge(patch model.ThresholdPatch) model.ThresholdSet {
	m.mu.Lock()
	m.current = patch.Apply(m.current)
	res := m.current
	m.mu.Unlock()

	m.log.Debugf("пороги обновлены: %+v", res)
	return res
}
