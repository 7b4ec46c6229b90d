package tool

import "time"

// Millis время t в миллисекундах от начала эпохи
func Millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

// FromMillis обратное к Millis преобразование
func FromMillis(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond))
}
