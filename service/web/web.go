package web

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/kirsrus/telerelay/controller"
	"github.com/kirsrus/telerelay/pkg/metric"
	"github.com/kirsrus/telerelay/service"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/sirupsen/logrus"
)

const (
	webPort      = 3000
	metricsPath  = "/metrics"
	pingInterval = 10 * time.Second
	writeTimeout = 5 * time.Second
	bodyLimit    = "1M"
)

// Пути API
const (
	PathGetThresholds    = "/api/get-thresholds"
	PathSendData         = "/api/send-data"
	PathGetData          = "/api/get-data"
	PathUpdateThresholds = "/api/update-thresholds"
	PathInsertDate       = "/api/inserir-data"
	PathStatus           = "/api/status"
	PathStream           = "/api/stream"
	PathIndex            = "/"
)

// ConfigWeb конфигурация структуры Web
type ConfigWeb struct {
	Log *logrus.Logger

	WebPort uint
	// Путь выдачи метрик. Метрики не выдаются, если Metric не задан
	MetricsPath string
	Metric      *metric.Metric
	// Период ping в потоке замеров, иначе клиент закроет соединение
	PingInterval time.Duration
	Now          func() time.Time
}

// Web служба WEB-сервисов. Инициализируется через NewWeb
type Web struct {
	ctx      context.Context
	log      *logrus.Entry
	e        *echo.Echo
	upgrader websocket.Upgrader

	telemetryCtl controller.TelemetryCtl
	streamSvc    service.StreamSvc
	metric       *metric.Metric

	webPort      uint
	metricsPath  string
	pingInterval time.Duration
	now          func() time.Time
}

// NewWeb конструктор структуры Web. streamSvc может быть nil, тогда поток замеров
// не публикуется
func NewWeb(ctx context.Context, telemetryCtl controller.TelemetryCtl, streamSvc service.StreamSvc, config *ConfigWeb) (service.WebSvc, error) {
	web, err := newWeb(ctx, telemetryCtl, streamSvc, config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return web, nil
}

func newWeb(ctx context.Context, telemetryCtl controller.TelemetryCtl, streamSvc service.StreamSvc, config *ConfigWeb) (*Web, error) {
	if config == nil {
		return nil, errors.New("не установлена конфигурация")
	}
	if telemetryCtl == nil {
		return nil, errors.New("не передан контроллер телеметрии")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}

	web := Web{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "web",
			"scope":  "service",
		}),
		e: echo.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},

		telemetryCtl: telemetryCtl,
		streamSvc:    streamSvc,
		metric:       config.Metric,

		webPort:      webPort,
		metricsPath:  metricsPath,
		pingInterval: pingInterval,
		now:          time.Now,
	}
	if config.WebPort != 0 {
		web.webPort = config.WebPort
	}
	if config.MetricsPath != "" {
		web.metricsPath = config.MetricsPath
	}
	if config.PingInterval != 0 {
		web.pingInterval = config.PingInterval
	}
	if config.Now != nil {
		web.now = config.Now
	}

	web.e.HideBanner = true
	web.e.HidePort = true
	web.e.Use(middleware.Recover())
	web.e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	web.e.Use(middleware.BodyLimit(bodyLimit))
	web.e.Use(web.timing)

	web.routes()

	return &web, nil
}

// Регистрация точек входа
func (m *Web) routes() {
	m.e.GET(PathGetThresholds, m.getThresholds)
	m.e.POST(PathSendData, m.sendData)
	m.e.GET(PathGetData, m.getData)
	m.e.POST(PathUpdateThresholds, m.updateThresholds)
	m.e.POST(PathInsertDate, m.insertDate)
	m.e.GET(PathStatus, m.status)
	m.e.GET(PathIndex, m.index)
	if m.streamSvc != nil {
		m.e.GET(PathStream, m.stream)
	}
	if m.metric != nil {
		m.e.GET(m.metricsPath, echo.WrapHandler(m.metric.Handler()))
	}
}

// Учёт времени обработки запросов
func (m *Web) timing(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		m.metric.Timing(start, c.Path())
		return err
	}
}

// Serve запускает HTTP-сервер и блокируется до его остановки через Shutdown
func (m *Web) Serve() error {
	m.log.Infof("старт HTTP-сервера на порту :%d", m.webPort)
	err := m.e.Start(fmt.Sprintf(":%d", m.webPort))
	if err != nil && err != http.ErrServerClosed {
		return errors.Annotate(err, "сервер неожиданно завершил работу")
	}
	m.log.Info("HTTP-сервер остановлен")
	return nil
}

// Shutdown плавно останавливает HTTP-сервер
func (m *Web) Shutdown(ctx context.Context) error {
	return errors.Trace(m.e.Shutdown(ctx))
}
