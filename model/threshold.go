package model

// Значения порогов по умолчанию
const (
	DefaultTemperatureMax = 30.0  // °C
	DefaultHumidityMin    = 40.0  // %
	DefaultLuminosityMin  = 200.0 // lux
	DefaultDistanceMin    = 5.0   // cm
	DefaultDistanceMax    = 50.0  // cm
)

// ThresholdSet текущие пороги срабатывания тревог. Имена полей в JSON совпадают с теми,
// которые ожидает прошивка датчиков
type ThresholdSet struct {
	// Максимальная температура, °C
	TemperatureMax float64 `json:"temperatura_max"`
	// Минимальная влажность, %
	HumidityMin float64 `json:"umidade_min"`
	// Минимальная освещённость, lux
	LuminosityMin float64 `json:"luminosidade_min"`
	// Минимальное расстояние, cm
	DistanceMin float64 `json:"distancia_min"`
	// Максимальное расстояние, cm
	DistanceMax float64 `json:"distancia_max"`
}

// DefaultThresholds пороги, с которыми стартует сервис
func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		TemperatureMax: DefaultTemperatureMax,
		HumidityMin:    DefaultHumidityMin,
		LuminosityMin:  DefaultLuminosityMin,
		DistanceMin:    DefaultDistanceMin,
		DistanceMax:    DefaultDistanceMax,
	}
}

// ThresholdPatch частичное обновление порогов. Поле nil (отсутствует или null в JSON)
// означает "не менять". Ноль является допустимым значением
type ThresholdPatch struct {
	TemperatureMax *float64 `json:"temperatura_max"`
	HumidityMin    *float64 `json:"umidade_min"`
	LuminosityMin  *float64 `json:"luminosidade_min"`
	DistanceMin    *float64 `json:"distancia_min"`
	DistanceMax    *float64 `json:"distancia_max"`
}

// IsEmpty в обновлении не задано ни одного поля
func (m ThresholdPatch) IsEmpty() bool {
	return m.TemperatureMax == nil && m.HumidityMin == nil && m.LuminosityMin == nil &&
		m.DistanceMin == nil && m.DistanceMax == nil
}

// Apply возвращает копию set с наложенными заданными полями patch
func (m ThresholdPatch) Apply(set ThresholdSet) ThresholdSet {
	if m.TemperatureMax != nil {
		set.TemperatureMax = *m.TemperatureMax
	}
	if m.HumidityMin != nil {
		set.HumidityMin = *m.HumidityMin
	}
	if m.LuminosityMin != nil {
		set.LuminosityMin = *m.LuminosityMin
	}
	if m.DistanceMin != nil {
		set.DistanceMin = *m.DistanceMin
	}
	if m.DistanceMax != nil {
		set.DistanceMax = *m.DistanceMax
	}
	return set
}

// Float вспомогательный конструктор указателя для ThresholdPatch
func Float(v float64) *float64 {
	return &v
}
