package mqtt

import (
	"context"
	"io/ioutil"
	"sync/atomic"
	"time"

	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/validator"
	"github.com/kirsrus/telerelay/service"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	MaximumResultChan = 64
	ReconnectTimeout  = 5 * time.Second
	ConnectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // мс
)

// Тип текущего состояния подключения к брокеру
type connectType int

const (
	connectUnknown connectType = iota
	connectSuccess
	connectFailed
)

// Mqtt приём замеров от датчиков через брокер MQTT. Имплементирует service.IngestSvc.
// Инициируется через NewMqtt. Держит подключение к брокеру, пока не завершён контекст
type Mqtt struct {
	ctx    context.Context
	log    *logrus.Entry
	client paho.Client

	topic            string
	qos              byte
	reconnectTimeout time.Duration
	connectTimeout   time.Duration

	// Канал передачи принятых замеров
	resultChan chan model.Reading
	// connectType. Пишется из loop и из обработчика подключения клиента paho
	connectedFlag atomic.Int32
}

// ConfigMqtt конфигурация Mqtt
type ConfigMqtt struct {
	Log              *logrus.Logger
	Broker           string `conform:"trim" validate:"required,broker"`
	Topic            string `conform:"trim" validate:"required"`
	ClientID         string `conform:"trim"`
	Qos              uint8  `validate:"lte=2"`
	ResultCapacity   uint
	ReconnectTimeout time.Duration
	ConnectTimeout   time.Duration
}

// NewMqtt конструктор структуры Mqtt
func NewMqtt(ctx context.Context, config *ConfigMqtt) (service.IngestSvc, error) {
	res, err := newMqtt(ctx, config)
	if err != nil {
		return nil, errors.Trace(err)
	}

	// Запускаем бесконечный цикл подключения к брокеру
	go res.loop()

	return res, nil
}

func newMqtt(ctx context.Context, config *ConfigMqtt) (*Mqtt, error) {
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

	res := &Mqtt{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "mqtt",
			"scope":  "service",
			"broker": config.Broker,
			"topic":  config.Topic,
		}),
		topic:            config.Topic,
		qos:              config.Qos,
		reconnectTimeout: ReconnectTimeout,
		connectTimeout:   ConnectTimeout,
		resultChan:       make(chan model.Reading, MaximumResultChan),
	}
	if config.ResultCapacity != 0 {
		res.resultChan = make(chan model.Reading, config.ResultCapacity)
	}
	if config.ReconnectTimeout != 0 {
		res.reconnectTimeout = config.ReconnectTimeout
	}
	if config.ConnectTimeout != 0 {
		res.connectTimeout = config.ConnectTimeout
	}

	opts := paho.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetOnConnectHandler(res.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			res.log.Warnf("подключение к брокеру потеряно: %v", err)
		})
	res.client = paho.NewClient(opts)

	return res, nil
}

// Подключение к брокеру до успеха или завершения контекста. После завершения
// контекста отключаемся от брокера
func (m *Mqtt) loop() {
	m.log.Info("старт работы модуля")
	defer m.log.Info("завершение работы модуля")

	for {
		err := m.connect()
		if err == nil {
			break
		}
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.reconnectTimeout):
		}
	}

	<-m.ctx.Done()
	m.client.Disconnect(disconnectQuiesce)
}

// Подключение к брокеру. Переподключения после обрыва выполняет сам клиент
func (m *Mqtt) connect() error {
	token := m.client.Connect()
	if !token.WaitTimeout(m.connectTimeout) {
		err := errors.Errorf("нет ответа от брокера за %s", m.connectTimeout)
		m.connectFailed(err)
		return err
	}
	if err := token.Error(); err != nil {
		m.connectFailed(err)
		return errors.Trace(err)
	}
	return nil
}

// Ошибка подключения пишется в лог только при смене состояния
func (m *Mqtt) connectFailed(err error) {
	if connectType(m.connectedFlag.Swap(int32(connectFailed))) != connectFailed {
		m.log.Warnf("ошибка подключения: %v", err)
	}
}

func (m *Mqtt) connectSucceeded() {
	m.connectedFlag.Store(int32(connectSuccess))
	m.log.Infof("подключение установлено")
}

// Подписка на топик замеров при каждом (пере)подключении
func (m *Mqtt) onConnect(client paho.Client) {
	m.connectSucceeded()

	token := client.Subscribe(m.topic, m.qos, func(_ paho.Client, msg paho.Message) {
		m.accept(msg.Topic(), msg.Payload())
	})
	go func() {
		if !token.WaitTimeout(m.connectTimeout) {
			m.log.Warnf("нет подтверждения подписки на %s", m.topic)
			return
		}
		if err := token.Error(); err != nil {
			m.log.Errorf("ошибка подписки на %s: %v", m.topic, err)
		}
	}()
}

// Разбор сообщения из топика и передача замера в канал результата
func (m *Mqtt) accept(topic string, payload []byte) {
	reading, err := model.ParseReading(payload)
	if err != nil {
		m.log.Warnf("в топике %s некорректный замер \"%s\": %v", topic, string(payload), err)
		return
	}

	select {
	case m.resultChan <- reading:
	default:
		m.log.Warnf("канал resultChan переполнен, замер из %s пропущен", topic)
	}
}

// EmmitReading ожидает очередной замер от брокера. В случае штатного завершения работы,
// возвращается ошибка context.Canceled
func (m *Mqtt) EmmitReading() (model.Reading, error) {
	select {
	case reading := <-m.resultChan:
		return reading, nil
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	}
}
