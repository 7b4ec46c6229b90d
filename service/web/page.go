package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/kirsrus/telerelay/model"

	"github.com/juju/errors"
	"github.com/labstack/echo"
)

const timeFormat = "02/01/2006 15:04:05"

type endpoint struct {
	Method      string
	Path        string
	Description string
}

// Точки входа, перечисленные на странице состояния
var endpoints = []endpoint{
	{http.MethodGet, PathGetThresholds, "Buscar thresholds atualizados para o ESP32"},
	{http.MethodPost, PathSendData, "Receber dados dos sensores do ESP32"},
	{http.MethodGet, PathGetData, "Buscar dados para dashboard"},
	{http.MethodPost, PathUpdateThresholds, "Atualizar thresholds (opcional)"},
	{http.MethodPost, PathInsertDate, "Testar conexão com o banco de dados"},
	{http.MethodGet, PathStatus, "Estado do serviço"},
}

type pageData struct {
	Port      uint
	Endpoints []endpoint
	Status    model.Status
	Stream    bool
	Updated   string
	// Время последней проверки БД
	Probed string
}

var page = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Molha.me - API</title>
    <meta charset="utf-8">
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background: #f5f5f5; }
        .container { background: white; padding: 30px; border-radius: 10px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        h1 { color: #2c3e50; }
        .status { background: #27ae60; color: white; padding: 10px; border-radius: 5px; margin: 20px 0; }
        .endpoint { background: #ecf0f1; padding: 15px; margin: 10px 0; border-radius: 5px; }
        .method { background: #3498db; color: white; padding: 5px 10px; border-radius: 3px; font-weight: bold; }
        .fail { color: #c0392b; }
    </style>
</head>
<body>
<div class="container">
    <h1>Molha.me - API IoT</h1>
    <div class="status">API Online - Porta {{.Port}}</div>

    <h2>Endpoints Disponíveis:</h2>
    {{range .Endpoints}}
    <div class="endpoint">
        <span class="method">{{.Method}}</span> {{.Path}}<br>
        <small>{{.Description}}</small>
    </div>
    {{end}}
    {{if .Stream}}
    <div class="endpoint">
        <span class="method">WS</span> /api/stream<br>
        <small>Dados dos sensores em tempo real</small>
    </div>
    {{end}}

    <h2>Thresholds Atuais:</h2>
    <ul>
        <li>Temperatura Máxima: {{.Status.Thresholds.TemperatureMax}}°C</li>
        <li>Umidade Mínima: {{.Status.Thresholds.HumidityMin}}%</li>
        <li>Luminosidade Mínima: {{.Status.Thresholds.LuminosityMin}} lux</li>
        <li>Distância Mínima: {{.Status.Thresholds.DistanceMin}} cm</li>
        <li>Distância Máxima: {{.Status.Thresholds.DistanceMax}} cm</li>
    </ul>

    <h2>Status:</h2>
    <p>Registros no histórico: {{.Status.Total}} de {{.Status.Capacity}}</p>
    <p>Assinantes em tempo real: {{.Status.Subscribers}}</p>
    {{with .Status.Database}}
    {{if .OK}}
    <p>Banco de dados: ok ({{$.Probed}})</p>
    {{else}}
    <p class="fail">Banco de dados: {{.Error}} ({{$.Probed}})</p>
    {{end}}
    {{end}}
    <p>Última atualização: {{.Updated}}</p>
</div>
</body>
</html>
`))

// GET /
func (m *Web) index(c echo.Context) error {
	data := pageData{
		Port:      m.webPort,
		Endpoints: endpoints,
		Status:    m.telemetryCtl.Status(),
		Stream:    m.streamSvc != nil,
		Updated:   m.now().Format(timeFormat),
	}
	if probe := data.Status.Database; probe != nil {
		data.Probed = probe.Time.Format(timeFormat)
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return errors.Annotate(err, "ошибка формирования страницы")
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
