package nats

import (
	"encoding/json"
	"io/ioutil"
	"sync"
	"time"

	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/tool"
	"github.com/kirsrus/telerelay/pkg/validator"
	"github.com/kirsrus/telerelay/service"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/nats-io/go-nats"
	"github.com/sirupsen/logrus"
)

const (
	ClientName    = "telerelay"
	MaxReconnects = 10
	ReconnectWait = 2 * time.Second

	// EventThresholdsUpdated тип события об изменении порогов
	EventThresholdsUpdated = "thresholds_updated"
)

// Conn подключение к NATS. Реализуется *nats.Conn
type Conn interface {
	Publish(subj string, data []byte) error
	Close()
}

// DialFunc устанавливает подключение к серверу NATS
type DialFunc func(url string) (Conn, error)

// Event событие, публикуемое в NATS
type Event struct {
	ID   string             `json:"id"`
	Type string             `json:"type"`
	Time int64              `json:"time"`
	Data model.ThresholdSet `json:"data"`
}

// Nats оповещение об изменении порогов через NATS. Имплементирует service.NotifierSvc.
// Инициируется через NewNats. Подключение устанавливается при первой публикации и
// восстанавливается после ошибки
type Nats struct {
	log     *logrus.Entry
	url     string
	subject string
	dial    DialFunc
	now     func() time.Time

	mu   sync.Mutex
	conn Conn
}

// ConfigNats конфигурация Nats
type ConfigNats struct {
	Log     *logrus.Logger
	URL     string `conform:"trim" validate:"required,url"`
	Subject string `conform:"trim" validate:"required"`
	// Подменяет подключение к серверу (для тестов)
	Dial DialFunc
	Now  func() time.Time
}

// NewNats конструктор Nats
func NewNats(config *ConfigNats) (service.NotifierSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "ошибка в конфигурации")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	res := Nats{
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "nats",
			"scope":   "service",
			"subject": config.Subject,
		}),
		url:     config.URL,
		subject: config.Subject,
		dial:    config.Dial,
		now:     config.Now,
	}
	if res.dial == nil {
		res.dial = dial
	}
	if res.now == nil {
		res.now = time.Now
	}

	return &res, nil
}

func dial(url string) (Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(ClientName),
		nats.MaxReconnects(MaxReconnects),
		nats.ReconnectWait(ReconnectWait),
	)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return conn, nil
}

// ThresholdsChanged публикует новые пороги
func (m *Nats) ThresholdsChanged(thresholds model.ThresholdSet) error {
	data, err := json.Marshal(Event{
		ID:   uuid.New().String(),
		Type: EventThresholdsUpdated,
		Time: tool.Millis(m.now()),
		Data: thresholds,
	})
	if err != nil {
		return errors.Annotate(err, "ошибка сериализации события")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		conn, err := m.dial(m.url)
		if err != nil {
			return errors.Annotatef(err, "ошибка подключения к %s", m.url)
		}
		m.conn = conn
		m.log.Infof("подключение к %s установлено", m.url)
	}

	if err := m.conn.Publish(m.subject, data); err != nil {
		// Следующая публикация переподключится
		m.conn.Close()
		m.conn = nil
		return errors.Annotate(err, "ошибка публикации")
	}

	m.log.Debugf("пороги опубликованы: %s", string(data))
	return nil
}

// Close закрывает подключение
func (m *Nats) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}
