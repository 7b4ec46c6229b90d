package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/juju/errors"
)

// TimestampField имя поля с меткой времени замера (миллисекунды от начала эпохи)
const TimestampField = "timestamp"

// Поля, по которым определяется источник замера (в порядке приоритета)
var sourceFields = []string{"device", "device_id", "sensor_id", "id"}

// Reading один замер с датчика. Набор измерений произвольный и хранилищем не
// интерпретируется, кроме поля TimestampField
type Reading map[string]interface{}

// HasTimestamp в замере есть метка времени (отсутствие и null считаются одинаково)
func (m Reading) HasTimestamp() bool {
	v, ok := m[TimestampField]
	return ok && v != nil
}

// Timestamp возвращает метку времени замера в миллисекундах, если она задана числом
func (m Reading) Timestamp() (int64, bool) {
	switch v := m[TimestampField].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(math.Round(v)), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(math.Round(f)), true
		}
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// Clone поверхностная копия замера. Для nil возвращается пустой замер
func (m Reading) Clone() Reading {
	res := make(Reading, len(m)+1)
	for k, v := range m {
		res[k] = v
	}
	return res
}

// Source идентификатор источника замера, если датчик его передал
func (m Reading) Source() string {
	for _, field := range sourceFields {
		switch v := m[field].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		}
	}
	return ""
}

// ParseReading разбирает замер из JSON. Пустое тело считается пустым замером.
// Всё, что не является JSON-объектом, возвращает ошибку, проверяемую errors.IsNotValid
func ParseReading(data []byte) (Reading, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return Reading(obj), nil
}

// ParseThresholdPatch разбирает частичное обновление порогов из JSON. Пустое тело
// считается пустым обновлением. Неизвестные поля игнорируются
func ParseThresholdPatch(data []byte) (ThresholdPatch, error) {
	var patch ThresholdPatch
	if _, err := decodeObject(data); err != nil {
		return patch, errors.Trace(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return patch, nil
	}
	if err := json.Unmarshal(data, &patch); err != nil {
		return ThresholdPatch{}, errors.NewNotValid(err, "некорректные значения порогов")
	}
	return patch, nil
}

// Разбор тела запроса как JSON-объекта с сохранением чисел в виде json.Number
func decodeObject(data []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, errors.NewNotValid(err, "некорректный JSON")
	}
	if dec.More() {
		return nil, errors.NotValidf("лишние данные после JSON-объекта")
	}
	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, errors.NotValidf("ожидался JSON-объект, получен %T", value)
	}
	return obj, nil
}
