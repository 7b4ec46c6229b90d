package service

import (
	"context"

	"github.com/kirsrus/telerelay/model"
)

// WebSvc служба HTTP API и панели мониторинга
//
//go:generate mockery --dir . --name WebSvc --output ./mocks
type WebSvc interface {
	// Запускает WEB-сервер и блокируется до его остановки
	Serve() error
	// Плавно останавливает WEB-сервер
	Shutdown(ctx context.Context) error
}

// StreamSvc рассылка принятых замеров подписчикам в реальном времени
//
//go:generate mockery --dir . --name StreamSvc --output ./mocks
type StreamSvc interface {
	// Регистрирует подписчика и возвращает его идентификатор и канал замеров
	Subscribe() (string, <-chan model.Reading)
	// Удаляет подписчика и закрывает его канал
	Unsubscribe(id string)
	// Рассылает замер всем подписчикам. Никогда не блокируется
	ReadingAccepted(reading model.Reading)
	// Количество подписчиков
	Count() int
}

// IngestSvc источник замеров от датчиков помимо HTTP (брокер сообщений)
//
//go:generate mockery --dir . --name IngestSvc --output ./mocks
type IngestSvc interface {
	// Ожидает очередной замер. В случае штатного завершения работы возвращает context.Canceled
	EmmitReading() (model.Reading, error)
}

// RelaySvc пересылка принятых замеров во внешнюю шину
//
//go:generate mockery --dir . --name RelaySvc --output ./mocks
type RelaySvc interface {
	// Ставит замер в очередь на отправку. Никогда не блокируется, при переполнении замер теряется
	Relay(reading model.Reading)
	// Отправляет замеры из очереди до завершения контекста
	Run() error
	// Закрывает подключение
	Close() error
}

// NotifierSvc оповещение внешних систем об изменении порогов
//
//go:generate mockery --dir . --name NotifierSvc --output ./mocks
type NotifierSvc interface {
	// Публикует новые пороги
	ThresholdsChanged(thresholds model.ThresholdSet) error
	// Закрывает подключение
	Close() error
}
