package manager

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/kirsrus/telerelay/controller"
	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/metric"
	"github.com/kirsrus/telerelay/service"
	"github.com/kirsrus/telerelay/store"

	"github.com/juju/errors"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	dashboardHistory = 10
	probeTimeout     = 5 * time.Second
	probeCache       = 10 * time.Minute
	notifyCapacity   = 16

	// Ключ результата последней проверки базы данных в кэше
	probeKey = "probe"
)

// ErrDatabaseDisabled база данных отключена в конфигурации
var ErrDatabaseDisabled = errors.NewNotSupported(nil, "база данных отключена")

// ConfigManager конфигурация Manager
type ConfigManager struct {
	Log *logrus.Logger

	Telemetry store.TelemetryStore
	// Необязательные зависимости. nil отключает соответствующую функцию
	VisitStore  store.VisitStore
	StreamSvc   service.StreamSvc
	IngestCtl   controller.IngestCtl
	RelaySvc    service.RelaySvc
	NotifierSvc service.NotifierSvc
	Metric      *metric.Metric

	// Количество замеров в истории панели мониторинга
	DashboardHistory uint
	ProbeTimeout     time.Duration
	// Время хранения результата проверки базы данных
	ProbeCache time.Duration
	Now        func() time.Time
}

// Manager основной менеджер работы со всеми сервисами. Инициируется через NewManager.
// Имплементирует controller.TelemetryCtl
type Manager struct {
	ctx context.Context
	log *logrus.Entry

	telemetry   store.TelemetryStore
	visitStore  store.VisitStore
	streamSvc   service.StreamSvc
	ingestCtl   controller.IngestCtl
	relaySvc    service.RelaySvc
	notifierSvc service.NotifierSvc
	metric      *metric.Metric

	// Результат последней проверки базы данных
	cache  *cache.Cache
	notify chan model.ThresholdSet

	dashboardHistory int
	probeTimeout     time.Duration
	probeCache       time.Duration
	now              func() time.Time
}

// NewManager конструктор Manager
func NewManager(ctx context.Context, config *ConfigManager) (*Manager, error) {
	if config == nil {
		return nil, errors.New("не передана конфигурация")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if config.Telemetry == nil {
		return nil, errors.New("не передано хранилище телеметрии")
	}

	manager := Manager{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "manager",
			"scope":  "controller",
		}),
		telemetry:   config.Telemetry,
		visitStore:  config.VisitStore,
		streamSvc:   config.StreamSvc,
		ingestCtl:   config.IngestCtl,
		relaySvc:    config.RelaySvc,
		notifierSvc: config.NotifierSvc,
		metric:      config.Metric,

		notify: make(chan model.ThresholdSet, notifyCapacity),

		dashboardHistory: dashboardHistory,
		probeTimeout:     probeTimeout,
		probeCache:       probeCache,
		now:              time.Now,
	}
	if config.DashboardHistory != 0 {
		manager.dashboardHistory = int(config.DashboardHistory)
	}
	if config.ProbeTimeout != 0 {
		manager.probeTimeout = config.ProbeTimeout
	}
	if config.ProbeCache != 0 {
		manager.probeCache = config.ProbeCache
	}
	if config.Now != nil {
		manager.now = config.Now
	}
	manager.cache = cache.New(manager.probeCache, 2*manager.probeCache)

	manager.configToLog()

	if manager.notifierSvc != nil {
		go manager.notifyLoop()
	}

	return &manager, nil
}

// Вывести значения конфигурациии в лог
func (m *Manager) configToLog() {
	m.log.Debugf("dashboardHistory: %d", m.dashboardHistory)
	m.log.Debugf("probeTimeout: %s", m.probeTimeout)
	m.log.Debugf("probeCache: %s", m.probeCache)
	m.log.Debugf("visitStore: %t", m.visitStore != nil)
	m.log.Debugf("ingestCtl: %t", m.ingestCtl != nil)
	m.log.Debugf("relaySvc: %t", m.relaySvc != nil)
	m.log.Debugf("notifierSvc: %t", m.notifierSvc != nil)
}

// Thresholds текущие пороги
func (m *Manager) Thresholds() model.ThresholdSet {
	return m.telemetry.Get()
}

// UpdateThresholds частично обновляет пороги. Оповещение внешних систем выполняется
// асинхронно, после снятия блокировки хранилища
func (m *Manager) UpdateThresholds(patch model.ThresholdPatch) model.ThresholdSet {
	set := m.telemetry.Merge(patch)
	m.metric.ThresholdsUpdated()
	m.log.Infof("пороги обновлены: %+v", set)

	if m.notifierSvc != nil {
		select {
		case m.notify <- set:
		default:
			m.log.Warn("очередь оповещений о порогах переполнена")
		}
	}
	return set
}

// Публикация изменений порогов в порядке их применения
func (m *Manager) notifyLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case set := <-m.notify:
			if err := m.notifierSvc.ThresholdsChanged(set); err != nil {
				m.log.Warnf("ошибка оповещения об изменении порогов: %v", err)
			}
		}
	}
}

// AcceptReading сохраняет замер и рассылает сохранённую копию подписчикам и во внешнюю шину
func (m *Manager) AcceptReading(reading model.Reading, source string) model.Reading {
	stored := m.telemetry.Append(reading)
	m.metric.ReadingAccepted(source, m.telemetry.Size())

	if m.streamSvc != nil {
		m.streamSvc.ReadingAccepted(stored)
	}
	if m.relaySvc != nil {
		m.relaySvc.Relay(stored)
	}
	return stored
}

// Dashboard данные для панели мониторинга
func (m *Manager) Dashboard() model.Dashboard {
	snapshot := m.telemetry.Snapshot(m.dashboardHistory)

	current, ok := snapshot.Latest()
	if !ok {
		current = model.Reading{}
	}
	return model.Dashboard{
		Current:    current,
		Recent:     snapshot.Recent,
		Thresholds: snapshot.Thresholds,
		Total:      snapshot.Total,
		APIStatus:  model.StatusOnline,
	}
}

// ProbeDatabase проверка связи с базой данных. Результат запоминается для Status
func (m *Manager) ProbeDatabase(ctx context.Context) (*model.Visit, error) {
	if m.visitStore == nil {
		return nil, ErrDatabaseDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	visit, err := m.visitStore.InsertVisit(ctx)
	result := model.ProbeResult{OK: err == nil, Time: m.now()}
	if err != nil {
		result.Error = err.Error()
		m.log.Errorf("ошибка проверки базы данных: %v", err)
	} else {
		result.Time = visit.CreatedAt
	}
	m.cache.Set(probeKey, result, cache.DefaultExpiration)
	m.metric.Probe(result.OK)

	if err != nil {
		return nil, errors.Trace(err)
	}
	return visit, nil
}

// Status сводное состояние сервиса
func (m *Manager) Status() model.Status {
	snapshot := m.telemetry.Snapshot(0)
	status := model.Status{
		APIStatus:  model.StatusOnline,
		Total:      snapshot.Total,
		Capacity:   snapshot.Capacity,
		Thresholds: snapshot.Thresholds,
	}
	if m.streamSvc != nil {
		status.Subscribers = m.streamSvc.Count()
	}
	if v, ok := m.cache.Get(probeKey); ok {
		result := v.(model.ProbeResult)
		status.Database = &result
	}
	return status
}

// Serve приём замеров от брокеров и пересылка во внешнюю шину до завершения контекста
func (m *Manager) Serve() error {
	g := new(errgroup.Group)

	// Приём замеров от брокеров
	if m.ingestCtl != nil {
		g.Go(func() error {
			for {
				reading, source, err := m.ingestCtl.EmmitReading()
				if err != nil {
					if errors.Cause(err) == context.Canceled {
						return nil
					}
					return errors.Trace(err)
				}
				m.AcceptReading(reading, source)
			}
		})
	}

	// Пересылка замеров во внешнюю шину
	if m.relaySvc != nil {
		g.Go(func() error {
			return errors.Trace(m.relaySvc.Run())
		})
	}

	return errors.Trace(g.Wait())
}
