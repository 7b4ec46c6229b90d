package web

import (
	"io/ioutil"
	"net/http"
	"time"

	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/metric"
	"github.com/kirsrus/telerelay/pkg/tool"

	"github.com/juju/errors"
	"github.com/labstack/echo"
)

// Сообщения ответов. Тексты совпадают с теми, которые ожидают панель и прошивка датчиков
const (
	msgDataReceived      = "Dados recebidos com sucesso"
	msgThresholdsUpdated = "Thresholds atualizados"
	msgMalformed         = "Payload inválido: o corpo deve ser um objeto JSON"
	msgDateInserted      = "Data atual inserida com sucesso no banco de dados."
	msgDateFailed        = "Erro ao inserir data no banco de dados."
)

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	response
	Err string `json:"err"`
}

type sendDataResponse struct {
	response
	Timestamp int64 `json:"timestamp"`
}

type thresholdsResponse struct {
	response
	Thresholds model.ThresholdSet `json:"thresholds"`
}

type insertDateResponse struct {
	response
	Date time.Time `json:"data_inserida"`
}

// Тело запроса. Пустое тело равносильно пустому объекту
func readBody(c echo.Context) ([]byte, error) {
	body, err := ioutil.ReadAll(c.Request().Body)
	if err != nil {
		return nil, errors.NewNotValid(err, "ошибка чтения тела запроса")
	}
	return body, nil
}

// Ответ на некорректное тело запроса
func (m *Web) malformed(c echo.Context, err error) error {
	m.metric.MalformedPayload(c.Path())
	m.log.Warnf("%s: некорректное тело запроса: %v", c.Path(), err)
	return c.JSON(http.StatusBadRequest, errorResponse{
		response: response{Success: false, Message: msgMalformed},
		Err:      err.Error(),
	})
}

// GET /api/get-thresholds
func (m *Web) getThresholds(c echo.Context) error {
	return c.JSON(http.StatusOK, m.telemetryCtl.Thresholds())
}

// POST /api/send-data
func (m *Web) sendData(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return m.malformed(c, err)
	}
	reading, err := model.ParseReading(body)
	if err != nil {
		return m.malformed(c, err)
	}

	accepted := m.now()
	m.telemetryCtl.AcceptReading(reading, metric.SourceHTTP)

	return c.JSON(http.StatusOK, sendDataResponse{
		response:  response{Success: true, Message: msgDataReceived},
		Timestamp: tool.Millis(accepted),
	})
}

// GET /api/get-data
func (m *Web) getData(c echo.Context) error {
	return c.JSON(http.StatusOK, m.telemetryCtl.Dashboard())
}

// POST /api/update-thresholds
func (m *Web) updateThresholds(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return m.malformed(c, err)
	}
	patch, err := model.ParseThresholdPatch(body)
	if err != nil {
		return m.malformed(c, err)
	}

	set := m.telemetryCtl.UpdateThresholds(patch)

	return c.JSON(http.StatusOK, thresholdsResponse{
		response:   response{Success: true, Message: msgThresholdsUpdated},
		Thresholds: set,
	})
}

// POST /api/inserir-data
func (m *Web) insertDate(c echo.Context) error {
	visit, err := m.telemetryCtl.ProbeDatabase(c.Request().Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.IsNotSupported(err) {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, errorResponse{
			response: response{Success: false, Message: msgDateFailed},
			Err:      err.Error(),
		})
	}

	return c.JSON(http.StatusOK, insertDateResponse{
		response: response{Success: true, Message: msgDateInserted},
		Date:     visit.CreatedAt,
	})
}

// GET /api/status
func (m *Web) status(c echo.Context) error {
	return c.JSON(http.StatusOK, m.telemetryCtl.Status())
}
