package web

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo"
)

// GET /api/stream. Каждый принятый замер отправляется клиенту отдельным текстовым
// JSON-сообщением
func (m *Web) stream(c echo.Context) error {
	conn, err := m.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		m.log.Warnf("ошибка подключения к потоку замеров: %v", err)
		return nil
	}
	defer conn.Close()

	id, readings := m.streamSvc.Subscribe()
	defer m.streamSvc.Unsubscribe(id)
	m.log.Debugf("клиент %s подключился к потоку замеров", c.RealIP())

	// Входящие сообщения не ожидаются, читаем только чтобы заметить закрытие соединения
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(m.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-m.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeTimeout))
			return nil
		case <-closed:
			m.log.Debugf("клиент %s отключился от потока замеров", c.RealIP())
			return nil
		case reading, ok := <-readings:
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(reading); err != nil {
				m.log.Debugf("ошибка отправки замера клиенту %s: %v", c.RealIP(), err)
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				m.log.Debugf("ошибка ping клиента %s: %v", c.RealIP(), err)
				return nil
			}
		}
	}
}
