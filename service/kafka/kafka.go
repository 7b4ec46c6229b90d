package kafka

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"time"

	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/tool"
	"github.com/kirsrus/telerelay/pkg/validator"
	"github.com/kirsrus/telerelay/service"

	"github.com/juju/errors"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	QueueCapacity = 256
	WriteTimeout  = 10 * time.Second
)

// Writer отправщик сообщений в топик. Реализуется *kafka.Writer
//
//go:generate mockery --dir . --name Writer --output ./mocks
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka пересылка принятых замеров в топик Kafka. Имплементирует service.RelaySvc.
// Инициируется через NewKafka. Замеры копятся в ограниченной очереди, при её
// переполнении новые замеры теряются
type Kafka struct {
	ctx    context.Context
	log    *logrus.Entry
	writer Writer

	queue        chan model.Reading
	writeTimeout time.Duration
}

// ConfigKafka конфигурация Kafka
type ConfigKafka struct {
	Log     *logrus.Logger
	Brokers []string `validate:"required,min=1,dive,hostname_port"`
	Topic   string   `validate:"required"`
	// Ёмкость очереди на отправку
	QueueCapacity uint
	WriteTimeout  time.Duration
	// Подменяет *kafka.Writer (для тестов)
	Writer Writer
}

// NewKafka конструктор Kafka
func NewKafka(ctx context.Context, config *ConfigKafka) (service.RelaySvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if config.Writer == nil {
		if err := validator.Get().Validate(config); err != nil {
			return nil, errors.Annotate(err, "ошибка в конфигурации")
		}
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	res := Kafka{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "kafka",
			"scope":  "service",
			"topic":  config.Topic,
		}),
		writer:       config.Writer,
		queue:        make(chan model.Reading, QueueCapacity),
		writeTimeout: WriteTimeout,
	}
	if config.QueueCapacity != 0 {
		res.queue = make(chan model.Reading, config.QueueCapacity)
	}
	if config.WriteTimeout != 0 {
		res.writeTimeout = config.WriteTimeout
	}
	if res.writer == nil {
		res.writer = &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        config.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		}
	}

	return &res, nil
}

// Relay ставит замер в очередь на отправку
func (m *Kafka) Relay(reading model.Reading) {
	select {
	case m.queue <- reading.Clone():
	default:
		m.log.Warnf("очередь на отправку переполнена, замер пропущен")
	}
}

// Run отправляет замеры из очереди до завершения контекста. Ошибка отправки отдельного
// замера не прерывает работу
func (m *Kafka) Run() error {
	m.log.Info("старт работы модуля")
	defer m.log.Info("завершение работы модуля")

	for {
		select {
		case <-m.ctx.Done():
			return nil
		case reading := <-m.queue:
			if err := m.send(reading); err != nil {
				m.log.Errorf("ошибка отправки замера: %v", err)
			}
		}
	}
}

func (m *Kafka) send(reading model.Reading) error {
	msg, err := readingMessage(reading)
	if err != nil {
		return errors.Trace(err)
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.writeTimeout)
	defer cancel()

	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Annotate(err, "ошибка записи в топик")
	}
	return nil
}

// Close закрывает подключение к брокерам
func (m *Kafka) Close() error {
	return errors.Trace(m.writer.Close())
}

// Сообщение Kafka с замером. Ключом служит идентификатор датчика, чтобы замеры одного
// датчика попадали в одну партицию
func readingMessage(reading model.Reading) (kafka.Message, error) {
	value, err := json.Marshal(reading)
	if err != nil {
		return kafka.Message{}, errors.Annotate(err, "ошибка сериализации замера")
	}

	msg := kafka.Message{Value: value}
	if source := reading.Source(); source != "" {
		msg.Key = []byte(source)
	}
	if ts, ok := reading.Timestamp(); ok {
		msg.Time = tool.FromMillis(ts)
	}
	return msg, nil
}
