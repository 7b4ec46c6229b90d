package stream

import (
	"io/ioutil"
	"sync"

	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/service"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// Ёмкость очереди каждого подписчика по умолчанию
const subscriberCapacity = 16

// Hub рассылка принятых замеров подписчикам. Имплементирует service.StreamSvc.
// Инициализируется через NewHub. Медленный подписчик не тормозит остальных: если его
// очередь заполнена, замер для него пропускается
type Hub struct {
	log *logrus.Entry

	mu          sync.RWMutex
	subscribers map[string]chan model.Reading

	subscriberCapacity uint
}

// ConfigHub конфигурация Hub
type ConfigHub struct {
	Log *logrus.Logger
	// Ёмкость очереди каждого подписчика
	SubscriberCapacity uint
}

// NewHub конструктор Hub
func NewHub(config *ConfigHub) (service.StreamSvc, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	hub := Hub{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "stream",
			"scope":  "service",
		}),
		subscribers:        make(map[string]chan model.Reading),
		subscriberCapacity: subscriberCapacity,
	}
	if config.SubscriberCapacity != 0 {
		hub.subscriberCapacity = config.SubscriberCapacity
	}

	return &hub, nil
}

// Subscribe регистрирует подписчика
func (m *Hub) Subscribe() (string, <-chan model.Reading) {
	id := uuid.New().String()
	ch := make(chan model.Reading, m.subscriberCapacity)

	m.mu.Lock()
	m.subscribers[id] = ch
	count := len(m.subscribers)
	m.mu.Unlock()

	m.log.Debugf("подписчик %s добавлен, всего %d", id, count)
	return id, ch
}

// Unsubscribe удаляет подписчика и закрывает его канал. Повторный вызов безопасен
func (m *Hub) Unsubscribe(id string) {
	m.mu.Lock()
	ch, ok := m.subscribers[id]
	if ok {
		delete(m.subscribers, id)
		close(ch)
	}
	count := len(m.subscribers)
	m.mu.Unlock()

	if ok {
		m.log.Debugf("подписчик %s удалён, осталось %d", id, count)
	}
}

// ReadingAccepted рассылает замер всем подписчикам
func (m *Hub) ReadingAccepted(reading model.Reading) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, ch := range m.subscribers {
		select {
		case ch <- reading.Clone():
		default:
			m.log.Warnf("очередь подписчика %s переполнена, замер пропущен", id)
		}
	}
}

// Count количество подписчиков
func (m *Hub) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}
