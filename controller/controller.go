package controller

import (
	"context"

	"github.com/kirsrus/telerelay/model"
)

// TelemetryCtl операции над телеметрией, которые вызывает транспортный слой
//
//go:generate mockery --dir . --name TelemetryCtl --output ./mocks
type TelemetryCtl interface {
	// Текущие пороги
	Thresholds() model.ThresholdSet
	// Частично обновляет пороги и возвращает итоговые
	UpdateThresholds(patch model.ThresholdPatch) model.ThresholdSet
	// Принимает замер от источника source и возвращает сохранённую копию
	AcceptReading(reading model.Reading, source string) model.Reading
	// Данные для панели мониторинга из одного согласованного снимка
	Dashboard() model.Dashboard
	// Проверка связи с базой данных вставкой текущего времени
	ProbeDatabase(ctx context.Context) (*model.Visit, error)
	// Сводное состояние сервиса
	Status() model.Status
}

// IngestCtl объединённый поток замеров от всех брокеров
//
//go:generate mockery --dir . --name IngestCtl --output ./mocks
type IngestCtl interface {
	// Ожидает очередной замер от любого источника и возвращает его вместе с именем
	// источника. Возвращает context.Canceled при штатном завершении работы
	EmmitReading() (model.Reading, string, error)
}
