package controllers

import (
	"sync"

	"github.com/dentalflow/dentalflow-api/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var registerOnce sync.Once

func init() {
	RegisterValidators()
}

// RegisterValidators adds the domain tags used in request bindings:
// fdi (permanent tooth code), currency and gender.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			log.Warn().Msg("Binding validator is not go-playground; domain tags not registered")
			return
		}
		v.RegisterValidation("fdi", func(fl validator.FieldLevel) bool {
			return models.IsValidFDITooth(fl.Field().String())
		})
		v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return models.IsValidCurrency(fl.Field().String())
		})
		v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
			return models.IsValidGender(fl.Field().String())
		})
	})
}
