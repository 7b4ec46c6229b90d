package store

import (
	"context"

	"github.com/kirsrus/telerelay/model"
)

// ThresholdStore реестр текущих порогов. Все методы атомарны и безопасны для
// конкурентного вызова
//
//go:generate mockery --dir . --name ThresholdStore --output ./mocks
type ThresholdStore interface {
	// Текущие пороги
	Get() model.ThresholdSet
	// Накладывает заданные поля patch на текущие пороги и возвращает результат
	Merge(patch model.ThresholdPatch) model.ThresholdSet
}

// ReadingStore ограниченный по ёмкости журнал замеров. При переполнении вытесняется самый
// старый замер. Все методы атомарны и безопасны для конкурентного вызова
//
//go:generate mockery --dir . --name ReadingStore --output ./mocks
type ReadingStore interface {
	// Добавляет замер (при отсутствии метки времени проставляет текущую) и возвращает
	// сохранённую копию
	Append(reading model.Reading) model.Reading
	// Последние n замеров от старых к новым
	Tail(n int) []model.Reading
	// Последний замер
	Latest() (model.Reading, bool)
	// Количество замеров в журнале
	Size() int
	// Ёмкость журнала
	Capacity() int
}

// TelemetryStore хранилище замеров и порогов с согласованным снимком для панели
//
//go:generate mockery --dir . --name TelemetryStore --output ./mocks
type TelemetryStore interface {
	ThresholdStore
	ReadingStore
	// Снимок последних n замеров, порогов и размера журнала на один момент времени
	Snapshot(n int) model.Snapshot
}

// VisitStore внешняя база данных для проверки связи
//
//go:generate mockery --dir . --name VisitStore --output ./mocks
type VisitStore interface {
	// Записывает текущее время в таблицу посещений и возвращает созданную запись
	InsertVisit(ctx context.Context) (*model.Visit, error)
	// Закрывает подключение к БД
	Close() error
}
