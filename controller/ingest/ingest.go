package ingest

import (
	"context"
	"io/ioutil"

	"github.com/kirsrus/telerelay/controller"
	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/service"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// Величина общего канала замеров
	eventCapacity = 64
)

// Замер с именем источника
type event struct {
	reading model.Reading
	source  string
}

// Ingest контроллер объединения замеров от группы брокеров. Инициализируется через NewIngest.
// Держит чтение со всех источников до завершения контекста. Через EmmitReading отдаёт
// замеры в порядке поступления от любого источника
type Ingest struct {
	ctx context.Context
	log *logrus.Entry

	sources map[string]service.IngestSvc

	event chan event

	// Величина общего канала замеров
	eventCapacity uint
}

// ConfigIngest конфигурация Ingest
type ConfigIngest struct {
	Log *logrus.Logger
	// Величина общего канала замеров
	EventCapacity uint
}

// NewIngest конструктор Ingest. Ключ sources является именем источника
func NewIngest(ctx context.Context, sources map[string]service.IngestSvc, config *ConfigIngest) (controller.IngestCtl, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logrus.New()
		config.Log.Out = ioutil.Discard
	}
	if sources == nil {
		return nil, errors.New("не указан список sources")
	}
	for name, src := range sources {
		if src == nil {
			return nil, errors.Errorf("не указан источник %s", name)
		}
	}

	ingest := Ingest{
		ctx: ctx,
		log: config.Log.WithFields(map[string]interface{}{
			"module": "ingest",
			"scope":  "controller",
		}),
		sources:       sources,
		eventCapacity: eventCapacity,
	}
	if config.EventCapacity != 0 {
		ingest.eventCapacity = config.EventCapacity
	}
	ingest.event = make(chan event, ingest.eventCapacity)

	go ingest.loop()

	return &ingest, nil
}

// Получение замеров со всех источников до завершения контекста
func (m *Ingest) loop() {
	m.log.Info("старт работы модуля")
	defer m.log.Info("завершение работы модуля")

	g := new(errgroup.Group)
	for name, src := range m.sources {
		name, src := name, src
		g.Go(func() error {
			for {
				reading, err := src.EmmitReading()
				if err != nil {
					return errors.Annotatef(err, "источник %s", name)
				}
				select {
				case m.event <- event{reading: reading, source: name}:
				case <-m.ctx.Done():
					return m.ctx.Err()
				}
			}
		})
	}

	err := g.Wait()
	if err != nil && errors.Cause(err) != context.Canceled {
		m.log.Error(err)
	}
}

// EmmitReading ожидает замер от любого из источников. Возвращает context.Canceled
// при принудительном завершении работы
func (m *Ingest) EmmitReading() (model.Reading, string, error) {
	select {
	case <-m.ctx.Done():
		return nil, "", m.ctx.Err()
	case e := <-m.event:
		return e.reading, e.source, nil
	}
}
