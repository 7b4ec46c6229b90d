package wsfeed

import (
	"context"
	"io/ioutil"
	"strings"
	"time"

	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/validator"
	"github.com/kirsrus/telerelay/service"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	MaximumResultChan = 20
	ReconnectTimeout  = 5 * time.Second
	HandshakeTimeout  = 10 * time.Second
)

// Тип текущего состояния подключения к шлюзу
type connectType int

const (
	connectUnknown = iota
	connectSuccess
	connectFailed
)

// Feed приём замеров из WebSocket-ленты шлюза датчиков. Инициируется через NewFeed.
// Постоянно держит соединение, пока не завершён контекст. Каждое текстовое сообщение
// ленты является JSON-объектом замера
type Feed struct {
	url              string
	ctx              context.Context
	log              *logrus.Entry
	dialer           *websocket.Dialer
	reconnectTimeout time.Duration
	// Канал передачи результата
	resultChan    chan model.Reading
	connectedFlag connectType
}

// ConfigFeed конфигурация Feed
type ConfigFeed struct {
	Log              *logrus.Logger
	URL              string `conform:"trim" validate:"required,websocket"`
	ReconnectTimeout time.Duration
	ResultCapacity   uint
}

// NewFeed конструктор структуры Feed
func NewFeed(ctx context.Context, config *ConfigFeed) (service.IngestSvc, error) {
	if config == nil {
		return nil, errors.New("не задана конфигурация config")
	}
	if err := validator.Get().ValidateWithConform(config); err != nil {
		return nil, errors.Annotate(err, "некорректный адрес ленты")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	res := &Feed{
		url: config.URL,
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module":  "wsfeed",
			"scope":   "service",
			"address": config.URL,
		}),
		dialer: &websocket.Dialer{
			HandshakeTimeout: HandshakeTimeout,
		},
		reconnectTimeout: ReconnectTimeout,
		resultChan:       make(chan model.Reading, MaximumResultChan),
		connectedFlag:    connectUnknown,
	}
	if config.ReconnectTimeout != 0 {
		res.reconnectTimeout = config.ReconnectTimeout
	}
	if config.ResultCapacity != 0 {
		res.resultChan = make(chan model.Reading, config.ResultCapacity)
	}

	// Запускаем бесконечный цикл переподключения к шлюзу
	go res.loop()

	return res, nil
}

// Бесконечный цикл обращения к ленте шлюза. При завершении работы через context.Cancel просто
// завершаем его обработку
func (m *Feed) loop() {
	m.log.Info("старт работы модуля")

	for {
		select {
		case <-m.ctx.Done():
			m.log.Info("завершение работы модуля")
			return
		default:
		}

		err := m.connect()

		if err != nil && errors.Cause(err) != context.Canceled {
			select {
			case <-m.ctx.Done():
			case <-time.After(m.reconnectTimeout):
			}
		}
	}
}

// Подключение по WebSocket к шлюзу и чтение ленты до разрыва соединения
func (m *Feed) connect() error {
	read := make(chan []byte, 10)
	done := make(chan error, 1)

	conn, _, err := m.dialer.DialContext(m.ctx, m.url, nil)
	if err != nil {
		if m.connectedFlag == connectUnknown || m.connectedFlag == connectSuccess {
			m.log.Warnf("ошибка подключения: %v", err)
		}
		m.connectedFlag = connectFailed
		return errors.Trace(err)
	}
	defer func() { _ = conn.Close() }()
	if m.connectedFlag == connectUnknown || m.connectedFlag == connectFailed {
		m.log.Infof("подключение установлено")
		m.connectedFlag = connectSuccess
	}

	// Бесконечно читаем из канала WebSocket
	go func() {
		for {
			tpe, message, err := conn.ReadMessage()
			if err != nil {
				if !strings.Contains(err.Error(), "use of closed network connection") {
					m.log.Warnf("ошибка чтения из WebSocket: %v", err)
					done <- errors.Trace(err)
				} else {
					done <- nil
				}
				return
			}
			if tpe != websocket.TextMessage {
				m.log.Warnf("пропущено нетиповое послание типа %d, размера %d", tpe, len(message))
				continue
			}

			select {
			case <-m.ctx.Done():
				return
			case read <- message:
			default:
				m.log.Warnf("очередь read переполнена")
			}
		}
	}()

	// Обрабатываем результат чтения
	for {
		select {
		case <-m.ctx.Done():
			return m.ctx.Err()
		case err := <-done:
			// Прочитанное до разрыва соединения уже лежит в read
			for {
				select {
				case message := <-read:
					m.accept(message)
				default:
					return err
				}
			}
		case message := <-read:
			m.accept(message)
		}
	}
}

// Разбор сообщения ленты и передача замера в канал результата
func (m *Feed) accept(message []byte) {
	reading, err := model.ParseReading(message)
	if err != nil {
		m.log.Warnf("пришёл некорректный замер \"%s\": %v", string(message), err)
		return
	}

	select {
	case m.resultChan <- reading:
	default:
		m.log.Warnf("канал resultChan переполнен")
	}
}

// EmmitReading ожидает замер из ленты. В случае штатного завершения работы
// возвращается ошибка context.Canceled
func (m *Feed) EmmitReading() (model.Reading, error) {
	select {
	case result := <-m.resultChan:
		return result, nil
	case <-m.ctx.Done():
		return nil, m.ctx.Err()
	}
}
