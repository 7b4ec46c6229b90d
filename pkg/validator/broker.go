package validator

import (
	"net/url"

	"github.com/go-playground/validator/v10"
)

// Схемы адресов, которые понимает клиент MQTT
var brokerSchemes = map[string]bool{
	"tcp":  true,
	"mqtt": true,
	"ssl":  true,
	"tls":  true,
	"ws":   true,
	"wss":  true,
}

// Валидатор корректного адреса брокера MQTT
func validatorBroker(fl validator.FieldLevel) bool {
	address, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	addr, err := url.Parse(address)
	if err != nil {
		return false
	}
	return brokerSchemes[addr.Scheme] && addr.Host != ""
}
