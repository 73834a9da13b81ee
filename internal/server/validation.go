package server

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/typemate/typemate/internal/core/persona"
)

var registerOnce sync.Once

// registerValidators adds the "mbti" tag to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("mbti", func(fl validator.FieldLevel) bool {
				return persona.Valid(fl.Field().String())
			})
		}
	})
}
