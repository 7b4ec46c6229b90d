package memory

import (
	"io/ioutil"
	"sync"
	"time"

	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/tool"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// DefaultCapacity сколько последних замеров хранит журнал
const DefaultCapacity = 100

// Readings журнал последних замеров на кольцевом буфере. Инициализируется через NewReadings.
// При переполнении самый старый замер вытесняется в той же критической секции, что и
// добавление нового, поэтому размер журнала никогда не превышает ёмкость
type Readings struct {
	log *logrus.Entry
	now func() time.Time

	mu       sync.RWMutex
	buf      []model.Reading
	head     int // Индекс самого старого замера
	size     int
	capacity int
}

// ConfigReadings конфигурация Readings
type ConfigReadings struct {
	Log *logrus.Logger
	// Ёмкость журнала
	Capacity int
	// Источник текущего времени для замеров без метки времени
	Now func() time.Time
}

// NewReadings конструктор Readings
func NewReadings(config *ConfigReadings) (*Readings, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Capacity < 0 {
		return nil, errors.Errorf("некорректная ёмкость журнала: %d", config.Capacity)
	}

	readings := Readings{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "readings",
			"scope":  "store",
		}),
		now:      time.Now,
		capacity: DefaultCapacity,
	}
	if config.Capacity != 0 {
		readings.capacity = config.Capacity
	}
	if config.Now != nil {
		readings.now = config.Now
	}
	readings.buf = make([]model.Reading, readings.capacity)

	return &readings, nil
}

// Append добавляет копию замера в конец журнала. Если у замера нет метки времени,
// проставляется текущее время в миллисекундах. Возвращает сохранённую копию
func (m *Readings) Append(reading model.Reading) model.Reading {
	r := reading.Clone()

	m.mu.Lock()
	if !r.HasTimestamp() {
		r[model.TimestampField] = tool.Millis(m.now())
	}
	evicted := false
	if m.size == m.capacity {
		// Журнал полон: новый замер занимает место самого старого
		m.buf[m.head] = r
		m.head = (m.head + 1) % m.capacity
		evicted = true
	} else {
		m.buf[(m.head+m.size)%m.capacity] = r
		m.size++
	}
	size := m.size
	m.mu.Unlock()

	if evicted {
		m.log.Debugf("журнал заполнен (%d), вытеснен самый старый замер", size)
	}
	return r.Clone()
}

// Tail последние n замеров от старых к новым. При n <= 0 или пустом журнале
// возвращается пустой срез
func (m *Readings) Tail(n int) []model.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tail(n)
}

// Latest последний добавленный замер
func (m *Readings) Latest() (model.Reading, bool) {
	last := m.Tail(1)
	if len(last) == 0 {
		return nil, false
	}
	return last[0], true
}

// Size количество замеров в журнале
func (m *Readings) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Capacity ёмкость журнала
func (m *Readings) Capacity() int {
	return m.capacity
}

// Копия последних n замеров. Вызывается под блокировкой
func (m *Readings) tail(n int) []model.Reading {
	if n > m.size {
		n = m.size
	}
	if n <= 0 {
		return make([]model.Reading, 0)
	}
	res := make([]model.Reading, n)
	start := m.head + m.size - n
	for i := 0; i < n; i++ {
		res[i] = m.buf[(start+i)%m.capacity].Clone()
	}
	return res
}
