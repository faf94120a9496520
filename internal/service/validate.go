package service

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRequest checks a request struct against its validate tags.
func ValidateRequest(req interface{}) error {
	return validate.Struct(req)
}
