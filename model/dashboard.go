package model

import "time"

// StatusOnline состояние API, отдаваемое панели
const StatusOnline = "online"

// Dashboard ответ для панели мониторинга. Собирается из одного согласованного снимка хранилища
type Dashboard struct {
	// Последний замер или пустой объект
	Current Reading `json:"dados_atuais"`
	// Последние замеры, от старых к новым
	Recent []Reading `json:"historico"`
	// Текущие пороги
	Thresholds ThresholdSet `json:"thresholds"`
	// Всего замеров в хранилище
	Total int `json:"total_registros"`
	// Состояние API
	APIStatus string `json:"api_status"`
}

// Snapshot согласованный снимок хранилища замеров и порогов на один момент времени
type Snapshot struct {
	Recent     []Reading
	Thresholds ThresholdSet
	Total      int
	Capacity   int
}

// Latest последний замер снимка
func (m Snapshot) Latest() (Reading, bool) {
	if len(m.Recent) == 0 {
		return nil, false
	}
	return m.Recent[len(m.Recent)-1], true
}

// Visit запись проверки связи с базой данных
type Visit struct {
	ID        int
	CreatedAt time.Time
}

// ProbeResult результат последней проверки связи с базой данных
type ProbeResult struct {
	OK    bool      `json:"ok"`
	Time  time.Time `json:"data"`
	Error string    `json:"erro,omitempty"`
}

// Status сводное состояние сервиса
type Status struct {
	APIStatus   string       `json:"api_status"`
	Total       int          `json:"total_registros"`
	Capacity    int          `json:"capacidade"`
	Subscribers int          `json:"assinantes"`
	Thresholds  ThresholdSet `json:"thresholds"`
	Database    *ProbeResult `json:"banco"`
}
