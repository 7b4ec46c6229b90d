package validator

import (
	"net/url"

	"github.com/go-playground/validator/v10"
)

// Валидатор адреса WebSocket (ws:// или wss:// с указанием хоста)
func validatorWebsocket(fl validator.FieldLevel) bool {
	address, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	addr, err := url.Parse(address)
	if err != nil {
		return false
	}
	return (addr.Scheme == "ws" || addr.Scheme == "wss") && addr.Host != ""
}
