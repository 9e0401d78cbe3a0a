package handler

import (
	"sync"

	"github.com/Async-Ng/ElecLab-sub001/internal/lab/entity"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the request_type and priority binding tags to gin's validator
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterValidation("request_type", func(fl validator.FieldLevel) bool {
			return entity.RequestType(fl.Field().String()).Valid()
		})
		v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
			return entity.Priority(fl.Field().String()).Valid()
		})
	})
}
