package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telerelay"

// Источники замеров (значения метки source)
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
	SourceFeed = "feed"
)

// Metric метрики сервиса в собственном реестре Prometheus. Методы безопасно вызывать
// у nil, тогда метрики не собираются
type Metric struct {
	registry *prometheus.Registry

	readings   *prometheus.CounterVec
	thresholds prometheus.Counter
	malformed  *prometheus.CounterVec
	probes     *prometheus.CounterVec
	stored     prometheus.Gauge
	timing     *prometheus.SummaryVec
}

// New создаёт и регистрирует метрики
func New() *Metric {
	m := &Metric{
		registry: prometheus.NewRegistry(),
		readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_total",
				Help:      "Принятые замеры по источникам",
			},
			[]string{"source"},
		),
		thresholds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "threshold_updates_total",
				Help:      "Обновления порогов",
			},
		),
		malformed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "malformed_payloads_total",
				Help:      "Отклонённые некорректные тела запросов",
			},
			[]string{"route"},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_probes_total",
				Help:      "Проверки связи с базой данных",
			},
			[]string{"result"},
		),
		stored: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stored_readings",
				Help:      "Замеров в хранилище",
			},
		),
		timing: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Время обработки запросов",
			},
			[]string{"route"},
		),
	}

	m.registry.MustRegister(m.readings, m.thresholds, m.malformed, m.probes, m.stored, m.timing)
	return m
}

// ReadingAccepted учитывает принятый замер
func (m *Metric) ReadingAccepted(source string, stored int) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(source).Inc()
	m.stored.Set(float64(stored))
}

// ThresholdsUpdated учитывает обновление порогов
func (m *Metric) ThresholdsUpdated() {
	if m == nil {
		return
	}
	m.thresholds.Inc()
}

// MalformedPayload учитывает отклонённое тело запроса
func (m *Metric) MalformedPayload(route string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(route).Inc()
}

// Probe учитывает результат проверки базы данных
func (m *Metric) Probe(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.probes.WithLabelValues(result).Inc()
}

// Timing учитывает время обработки запроса, начатого в start
func (m *Metric) Timing(start time.Time, route string) {
	if m == nil {
		return
	}
	m.timing.WithLabelValues(route).Observe(time.Since(start).Seconds())
}

// Handler HTTP-обработчик выдачи метрик
func (m *Metric) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
