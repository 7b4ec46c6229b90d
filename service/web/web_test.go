package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirsrus/telerelay/controller/manager"
	"github.com/kirsrus/telerelay/model"
	"github.com/kirsrus/telerelay/pkg/metric"
	"github.com/kirsrus/telerelay/service"
	"github.com/kirsrus/telerelay/service/stream"
	"github.com/kirsrus/telerelay/store/memory"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/k0kubun/pp"
)

var acceptTime = time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)

// Фиктивная база данных
type fakeVisits struct {
	err error
}

func (f *fakeVisits) InsertVisit(context.Context) (*model.Visit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Visit{ID: 1, CreatedAt: acceptTime}, nil
}

func (f *fakeVisits) Close() error { return nil }

type testWeb struct {
	*Web
	hub service.StreamSvc
}

func newTestWeb(t *testing.T, ctx context.Context, visits *fakeVisits) testWeb {
	t.Helper()

	telemetry, err := memory.NewTelemetry(&memory.ConfigTelemetry{})
	if err != nil {
		t.Fatal(err)
	}
	hub, err := stream.NewHub(&stream.ConfigHub{})
	if err != nil {
		t.Fatal(err)
	}
	// Один реестр метрик на менеджер и WEB, как в cmd/main.go
	metrics := metric.New()
	config := &manager.ConfigManager{
		Telemetry: telemetry,
		StreamSvc: hub,
		Metric:    metrics,
		Now:       func() time.Time { return acceptTime },
	}
	if visits != nil {
		config.VisitStore = visits
	}
	ctl, err := manager.NewManager(ctx, config)
	if err != nil {
		t.Fatal(err)
	}
	web, err := newWeb(ctx, ctl, hub, &ConfigWeb{
		Metric:       metrics,
		PingInterval: 50 * time.Millisecond,
		Now:          func() time.Time { return acceptTime },
	})
	if err != nil {
		t.Fatal(err)
	}
	return testWeb{Web: web, hub: hub}
}

func (m testWeb) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	m.e.ServeHTTP(rec, req)

	var res map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("%s %s: ответ не JSON: %s", method, path, rec.Body.String())
	}
	return rec.Code, res
}

func TestNewWeb(t *testing.T) {
	if _, err := NewWeb(context.Background(), nil, nil, &ConfigWeb{}); err == nil {
		t.Error("NewWeb без контроллера не вернул ошибку")
	}
	w := newTestWeb(t, context.Background(), nil)
	if _, err := NewWeb(context.Background(), w.telemetryCtl, nil, nil); err == nil {
		t.Error("NewWeb(nil) не вернул ошибку")
	}
	if w.webPort != webPort || w.metricsPath != metricsPath {
		t.Errorf("значения по умолчанию не установлены: %d %s", w.webPort, w.metricsPath)
	}
}

func TestWeb_GetThresholds(t *testing.T) {
	w := newTestWeb(t, context.Background(), nil)

	code, res := w.do(t, http.MethodGet, PathGetThresholds, "")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	want := map[string]float64{
		"temperatura_max":  30,
		"umidade_min":      40,
		"luminosidade_min": 200,
		"distancia_min":    5,
		"distancia_max":    50,
	}
	if len(res) != len(want) {
		t.Errorf("ответ %s", pp.Sprint(res))
	}
	for k, v := range want {
		if res[k] != v {
			t.Errorf("%s = %v, want %v", k, res[k], v)
		}
	}
}

// Сценарий панели: обновление одного порога, два замера, чтение панели
func TestWeb_DashboardScenario(t *testing.T) {
	w := newTestWeb(t, context.Background(), nil)

	code, res := w.do(t, http.MethodPost, PathUpdateThresholds, `{"temperatura_max":35}`)
	if code != http.StatusOK || res["success"] != true || res["message"] != msgThresholdsUpdated {
		t.Fatalf("update-thresholds: %d %s", code, pp.Sprint(res))
	}
	thresholds := res["thresholds"].(map[string]interface{})
	if thresholds["temperatura_max"] != 35.0 || thresholds["umidade_min"] != 40.0 {
		t.Errorf("thresholds = %v", thresholds)
	}

	for _, body := range []string{
		`{"temperatura":31,"umidade":45,"timestamp":1000}`,
		`{"temperatura":36,"umidade":44}`,
	} {
		code, res := w.do(t, http.MethodPost, PathSendData, body)
		if code != http.StatusOK || res["success"] != true || res["message"] != msgDataReceived {
			t.Fatalf("send-data: %d %s", code, pp.Sprint(res))
		}
		if res["timestamp"] != float64(acceptTime.UnixNano()/int64(time.Millisecond)) {
			t.Errorf("timestamp = %v", res["timestamp"])
		}
	}

	code, res = w.do(t, http.MethodGet, PathGetData, "")
	if code != http.StatusOK {
		t.Fatalf("get-data: %d", code)
	}
	if res["api_status"] != "online" || res["total_registros"] != 2.0 {
		t.Errorf("get-data = %s", pp.Sprint(res))
	}
	current := res["dados_atuais"].(map[string]interface{})
	if current["temperatura"] != 36.0 {
		t.Errorf("dados_atuais = %v", current)
	}
	if _, ok := current["timestamp"]; !ok {
		t.Error("замеру без метки времени она не проставлена")
	}
	history := res["historico"].([]interface{})
	if len(history) != 2 || history[0].(map[string]interface{})["timestamp"] != 1000.0 {
		t.Errorf("historico = %v", history)
	}
	if res["thresholds"].(map[string]interface{})["temperatura_max"] != 35.0 {
		t.Errorf("thresholds = %v", res["thresholds"])
	}
}

func TestWeb_GetDataEmpty(t *testing.T) {
	w := newTestWeb(t, context.Background(), nil)

	_, res := w.do(t, http.MethodGet, PathGetData, "")
	if current, ok := res["dados_atuais"].(map[string]interface{}); !ok || len(current) != 0 {
		t.Errorf("dados_atuais = %v, want {}", res["dados_atuais"])
	}
	if history, ok := res["historico"].([]interface{}); !ok || len(history) != 0 {
		t.Errorf("historico = %v, want []", res["historico"])
	}
	if res["total_registros"] != 0.0 {
		t.Errorf("total_registros = %v", res["total_registros"])
	}
}

func TestWeb_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"send-data массив", PathSendData, `[1,2,3]`, http.StatusBadRequest},
		{"send-data не JSON", PathSendData, `temperatura=1`, http.StatusBadRequest},
		{"send-data строка", PathSendData, `"x"`, http.StatusBadRequest},
		{"send-data пустое тело", PathSendData, ``, http.StatusOK},
		{"update-thresholds null", PathUpdateThresholds, `null`, http.StatusBadRequest},
		{"update-thresholds не число", PathUpdateThresholds, `{"temperatura_max":"alto"}`, http.StatusBadRequest},
		{"update-thresholds пустое тело", PathUpdateThresholds, ``, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWeb(t, context.Background(), nil)
			code, res := w.do(t, http.MethodPost, tt.path, tt.body)
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d: %s", code, tt.wantCode, pp.Sprint(res))
			}
			if code == http.StatusBadRequest {
				if res["success"] != false || res["message"] != msgMalformed {
					t.Errorf("ответ %s", pp.Sprint(res))
				}
				// Некорректный запрос не меняет состояние
				_, data := w.do(t, http.MethodGet, PathGetData, "")
				if data["total_registros"] != 0.0 {
					t.Errorf("total_registros = %v", data["total_registros"])
				}
				if w.telemetryCtl.Thresholds() != model.DefaultThresholds() {
					t.Errorf("пороги изменены: %+v", w.telemetryCtl.Thresholds())
				}
			}
		})
	}
}

func TestWeb_InsertDate(t *testing.T) {
	tests := []struct {
		name     string
		visits   *fakeVisits
		wantCode int
	}{
		{"успешно", &fakeVisits{}, http.StatusOK},
		{"ошибка БД", &fakeVisits{err: errors.New("connection refused")}, http.StatusInternalServerError},
		{"БД отключена", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWeb(t, context.Background(), tt.visits)
			code, res := w.do(t, http.MethodPost, PathInsertDate, "")
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d: %s", code, tt.wantCode, pp.Sprint(res))
			}
			if code == http.StatusOK {
				if res["success"] != true || res["message"] != msgDateInserted {
					t.Errorf("ответ %s", pp.Sprint(res))
				}
				if res["data_inserida"] != acceptTime.Format(time.RFC3339) {
					t.Errorf("data_inserida = %v", res["data_inserida"])
				}
				return
			}
			if res["success"] != false || res["message"] != msgDateFailed || res["err"] == "" {
				t.Errorf("ответ %s", pp.Sprint(res))
			}
		})
	}
}

func TestWeb_Status(t *testing.T) {
	w := newTestWeb(t, context.Background(), &fakeVisits{})
	w.do(t, http.MethodPost, PathSendData, `{"a":1}`)
	w.do(t, http.MethodPost, PathInsertDate, "")

	code, res := w.do(t, http.MethodGet, PathStatus, "")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if res["api_status"] != "online" || res["total_registros"] != 1.0 || res["capacidade"] != 100.0 {
		t.Errorf("status = %s", pp.Sprint(res))
	}
	banco, ok := res["banco"].(map[string]interface{})
	if !ok || banco["ok"] != true {
		t.Errorf("banco = %v", res["banco"])
	}
}

func TestWeb_Index(t *testing.T) {
	w := newTestWeb(t, context.Background(), nil)
	w.telemetryCtl.UpdateThresholds(model.ThresholdPatch{LuminosityMin: model.Float(321)})

	rec := httptest.NewRecorder()
	w.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathIndex, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"API Online - Porta 3000",
		PathGetThresholds,
		PathSendData,
		"Luminosidade Mínima: 321 lux",
		"Registros no histórico: 0 de 100",
		"02/01/2021 03:04:05",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("на странице нет %q", want)
		}
	}
	if strings.Contains(body, "Banco de dados") {
		t.Error("на странице состояние БД, хотя проверки не было")
	}
}

func TestWeb_IndexProbe(t *testing.T) {
	renderTime := time.Date(2022, 11, 30, 23, 59, 58, 0, time.UTC)
	tests := []struct {
		name   string
		visits *fakeVisits
		want   []string
	}{
		{
			name:   "успешная проверка",
			visits: &fakeVisits{},
			want:   []string{"Banco de dados: ok (02/01/2021 03:04:05)"},
		},
		{
			name:   "ошибка БД",
			visits: &fakeVisits{err: errors.New("connection refused")},
			want:   []string{`<p class="fail">Banco de dados: `, "connection refused", "(02/01/2021 03:04:05)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWeb(t, context.Background(), tt.visits)
			w.now = func() time.Time { return renderTime }
			w.do(t, http.MethodPost, PathInsertDate, "")

			rec := httptest.NewRecorder()
			w.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathIndex, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("code = %d", rec.Code)
			}
			body := rec.Body.String()
			for _, want := range append(tt.want, "Última atualização: 30/11/2022 23:59:58") {
				if !strings.Contains(body, want) {
					t.Errorf("на странице нет %q:\n%s", want, body)
				}
			}
		})
	}
}

func TestWeb_Metrics(t *testing.T) {
	w := newTestWeb(t, context.Background(), nil)
	w.do(t, http.MethodPost, PathSendData, `{"a":1}`)
	w.do(t, http.MethodPost, PathSendData, `[]`)

	rec := httptest.NewRecorder()
	w.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, metricsPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`telerelay_readings_total{source="http"} 1`,
		`telerelay_malformed_payloads_total{route="/api/send-data"} 1`,
		`telerelay_stored_readings 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("в метриках нет %q", want)
		}
	}
}

func TestWeb_Stream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newTestWeb(t, ctx, nil)

	server := httptest.NewServer(w.e)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + PathStream
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Подписка регистрируется в обработчике после установки соединения
	deadline := time.After(time.Second)
	for w.hub.Count() != 1 {
		select {
		case <-deadline:
			t.Fatal("подписчик не зарегистрирован")
		case <-time.After(5 * time.Millisecond):
		}
	}

	res, err := http.Post(server.URL+PathSendData, "application/json", strings.NewReader(`{"device":"a1","umidade":42}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reading map[string]interface{}
	if err := conn.ReadJSON(&reading); err != nil {
		t.Fatal(err)
	}
	if reading["device"] != "a1" || reading["umidade"] != 42.0 {
		t.Errorf("получен замер %v", reading)
	}
	if _, ok := reading["timestamp"]; !ok {
		t.Error("в замере нет метки времени")
	}

	conn.Close()
	deadline = time.After(time.Second)
	for w.hub.Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("подписчик не удалён после закрытия соединения")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
